package a2s_test

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/woozymasta/a2squery/pkg/a2s"
)

func ptr[T any](v T) *T { return &v }

// basicInfo returns the wire bytes of a minimal info response followed by extra.
func basicInfo(serverType, environment byte, extra ...byte) []byte {
	b := []byte{0x49, 0x11}
	b = append(b, "My Server\x00de_dust2\x00cstrike\x00Counter-Strike\x00"...)
	b = append(b, 0x0A, 0x00) // app id 10
	b = append(b, 5, 32, 1)   // players, max, bots
	b = append(b, serverType, environment, 0, 1)
	b = append(b, "1.1.2.7\x00"...)
	return append(b, extra...)
}

func TestParseInfo(t *testing.T) {
	t.Run(
		"without extra data flags",
		func(t *testing.T) {
			for _, trailer := range [][]byte{nil, {0x00}} {
				info, err := a2s.ParseInfo(basicInfo('d', 'l', trailer...))
				if err != nil {
					t.Fatalf("ParseInfo() failed unexpectedly: %s", err)
				}

				if info.Protocol != 17 || info.Name != "My Server" || info.Map != "de_dust2" ||
					info.Folder != "cstrike" || info.Game != "Counter-Strike" {
					t.Fatalf("ParseInfo() strings = %+v", info)
				}
				if info.AppID != 10 || info.Players != 5 || info.MaxPlayers != 32 || info.Bots != 1 {
					t.Fatalf("ParseInfo() counters = %+v", info)
				}
				if info.ServerType != a2s.ServerTypeDedicated || info.Environment != a2s.EnvironmentLinux {
					t.Fatalf("ParseInfo() enums = %s, %s", info.ServerType, info.Environment)
				}
				if info.Visibility || !info.VAC || info.Version != "1.1.2.7" {
					t.Fatalf("ParseInfo() flags = %+v", info)
				}
				if info.EDF != 0 || info.Port != nil || info.SteamID != nil || info.Keywords != nil ||
					info.GameID != nil || info.SourceTV != nil || info.TheShip != nil {
					t.Fatalf("ParseInfo() reported optional fields: %+v", info)
				}
			}
		},
	)

	t.Run(
		"environment aliases",
		func(t *testing.T) {
			tests := map[byte]a2s.Environment{
				'l': a2s.EnvironmentLinux,
				'w': a2s.EnvironmentWindows,
				'm': a2s.EnvironmentMac,
				'o': a2s.EnvironmentMac,
			}
			for b, want := range tests {
				info, err := a2s.ParseInfo(basicInfo('p', b))
				if err != nil {
					t.Fatalf("ParseInfo(env %q) failed unexpectedly: %s", b, err)
				}
				if info.Environment != want || info.ServerType != a2s.ServerTypeSourceTV {
					t.Fatalf("ParseInfo(env %q) = %s, %s", b, info.Environment, info.ServerType)
				}
			}
		},
	)

	t.Run(
		"unknown enumerations",
		func(t *testing.T) {
			var decodeErr *a2s.DecodeError

			_, err := a2s.ParseInfo(basicInfo('x', 'l'))
			if !errors.As(err, &decodeErr) || decodeErr.Field != "server type" || decodeErr.Value != 'x' {
				t.Fatalf("ParseInfo(server type 'x') got %v, want DecodeError", err)
			}

			_, err = a2s.ParseInfo(basicInfo('d', 'z'))
			if !errors.As(err, &decodeErr) || decodeErr.Field != "environment" {
				t.Fatalf("ParseInfo(environment 'z') got %v, want DecodeError", err)
			}
		},
	)

	t.Run(
		"wrong discriminant",
		func(t *testing.T) {
			b := basicInfo('d', 'l')
			b[0] = 0x6D
			if _, err := a2s.ParseInfo(b); !errors.Is(err, a2s.ErrInvalidResponse) {
				t.Fatalf("ParseInfo() got %v, want ErrInvalidResponse", err)
			}
		},
	)

	t.Run(
		"truncated",
		func(t *testing.T) {
			full := basicInfo('d', 'l')
			// Cut inside the counters block, after the strings.
			cut := len(full) - len("1.1.2.7\x00") - 3
			if _, err := a2s.ParseInfo(full[:cut]); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("ParseInfo() got %v, want io.ErrUnexpectedEOF", err)
			}

			// Flags promise a port that is not there.
			if _, err := a2s.ParseInfo(basicInfo('d', 'l', a2s.EDFPort, 0x87)); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("ParseInfo() got %v, want io.ErrUnexpectedEOF", err)
			}
		},
	)

	t.Run(
		"extra data in wire order",
		func(t *testing.T) {
			extra := []byte{a2s.EDFPort | a2s.EDFSteamID | a2s.EDFKeywords | a2s.EDFGameID | a2s.EDFSourceTV}
			extra = append(extra, 0x87, 0x69)                                     // port 27015
			extra = append(extra, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08) // steam id
			extra = append(extra, "secure,hltv\x00"...)
			extra = append(extra, 0xF0, 0, 0, 0, 0, 0, 0, 0) // game id 240
			extra = append(extra, 0x88, 0x69)                 // sourcetv port 27016
			extra = append(extra, "SourceTV\x00"...)

			info, err := a2s.ParseInfo(basicInfo('d', 'w', extra...))
			if err != nil {
				t.Fatalf("ParseInfo() failed unexpectedly: %s", err)
			}
			if info.Port == nil || *info.Port != 27015 {
				t.Fatalf("Port = %v", info.Port)
			}
			if info.SteamID == nil || *info.SteamID != 0x0807060504030201 {
				t.Fatalf("SteamID = %v", info.SteamID)
			}
			if info.Keywords == nil || *info.Keywords != "secure,hltv" {
				t.Fatalf("Keywords = %v", info.Keywords)
			}
			if info.GameID == nil || *info.GameID != 240 {
				t.Fatalf("GameID = %v", info.GameID)
			}
			if info.SourceTV == nil || info.SourceTV.Port != 27016 || info.SourceTV.Name != "SourceTV" {
				t.Fatalf("SourceTV = %+v", info.SourceTV)
			}
		},
	)

	t.Run(
		"the ship",
		func(t *testing.T) {
			b := []byte{0x49, 0x07}
			b = append(b, "Ship\x00batavier\x00ship\x00The Ship\x00"...)
			b = append(b, 0x60, 0x09) // app id 2400
			b = append(b, 4, 16, 0, 'd', 'w', 0, 1)
			b = append(b, 9, 3, 60) // unknown mode, witnesses, duration
			b = append(b, "1.0.0.5\x00"...)

			info, err := a2s.ParseInfo(b)
			if err != nil {
				t.Fatalf("ParseInfo() failed unexpectedly: %s", err)
			}
			want := &a2s.TheShip{Mode: a2s.TheShipModeUnknown, Witnesses: 3, Duration: 60}
			if info.TheShip == nil || *info.TheShip != *want {
				t.Fatalf("TheShip = %+v, want %+v", info.TheShip, want)
			}
			if info.Version != "1.0.0.5" {
				t.Fatalf("Version = %q", info.Version)
			}
		},
	)
}

func TestInfoRoundTrip(t *testing.T) {
	infos := []a2s.Info{
		{
			Protocol: 17, Name: "plain", Map: "de_inferno", Folder: "csgo", Game: "CS", AppID: 730,
			Players: 1, MaxPlayers: 10, ServerType: a2s.ServerTypeDedicated,
			Environment: a2s.EnvironmentLinux, VAC: true, Version: "1.38",
		},
		{
			Protocol: 17, Name: "everything", Map: "m", Folder: "f", Game: "g", AppID: 4000,
			ServerType: a2s.ServerTypeNonDedicated, Environment: a2s.EnvironmentWindows,
			Visibility: true, Version: "v",
			EDF:      a2s.EDFPort | a2s.EDFSteamID | a2s.EDFKeywords | a2s.EDFGameID | a2s.EDFSourceTV,
			Port:     ptr(uint16(27015)),
			SteamID:  ptr(uint64(90071992547409920)),
			Keywords: ptr("alltalk,increased_maxplayers"),
			GameID:   ptr(uint64(4000)),
			SourceTV: &a2s.SourceTV{Name: "tv", Port: 27020},
		},
		{
			Protocol: 7, Name: "ship", Map: "m", Folder: "ship", Game: "The Ship", AppID: a2s.AppIDTheShip,
			ServerType: a2s.ServerTypeDedicated, Environment: a2s.EnvironmentMac, Version: "1",
			TheShip: &a2s.TheShip{Mode: a2s.TheShipModeDuel, Witnesses: 2, Duration: 30},
			EDF:     a2s.EDFKeywords,
			Keywords: ptr(""),
		},
	}

	for _, want := range infos {
		b, err := want.MarshalBinary()
		if err != nil {
			t.Fatalf("Info[%s].MarshalBinary() failed unexpectedly: %s", want.Name, err)
		}

		var got a2s.Info
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatalf("Info.UnmarshalBinary(% x) failed unexpectedly: %s", b, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Info round trip mismatch:\n got: %+v\nwant: %+v", got, want)
		}
	}

	missing := a2s.Info{ServerType: a2s.ServerTypeDedicated, Environment: a2s.EnvironmentLinux, EDF: a2s.EDFGameID}
	if _, err := missing.MarshalBinary(); err == nil {
		t.Fatal("MarshalBinary() with a flagged nil field unexpectedly succeeded")
	}
}
