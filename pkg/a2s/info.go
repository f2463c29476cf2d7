package a2s

import (
	"fmt"
)

// ServerType indicates how a server is hosted.
type ServerType byte

// Server types.
const (
	ServerTypeDedicated    ServerType = 'd'
	ServerTypeNonDedicated ServerType = 'i'
	ServerTypeSourceTV     ServerType = 'p'
)

func parseServerType(b byte) (ServerType, error) {
	switch t := ServerType(b); t {
	case ServerTypeDedicated, ServerTypeNonDedicated, ServerTypeSourceTV:
		return t, nil
	default:
		return 0, &DecodeError{Field: "server type", Value: b}
	}
}

func (t ServerType) String() string {
	switch t {
	case ServerTypeDedicated:
		return "Dedicated"
	case ServerTypeNonDedicated:
		return "Non-Dedicated"
	case ServerTypeSourceTV:
		return "SourceTV"
	default:
		return fmt.Sprintf("ServerType(0x%02x)", byte(t))
	}
}

// MarshalText renders the server type by name.
func (t ServerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (t *ServerType) UnmarshalText(text []byte) error {
	for _, v := range []ServerType{ServerTypeDedicated, ServerTypeNonDedicated, ServerTypeSourceTV} {
		if v.String() == string(text) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("a2s: unknown server type %q", text)
}

// Environment is the operating system a server runs on.
type Environment byte

// Environments. Older servers report 'o' for Mac; it decodes as EnvironmentMac.
const (
	EnvironmentLinux   Environment = 'l'
	EnvironmentWindows Environment = 'w'
	EnvironmentMac     Environment = 'm'
)

func parseEnvironment(b byte) (Environment, error) {
	switch b {
	case 'l':
		return EnvironmentLinux, nil
	case 'w':
		return EnvironmentWindows, nil
	case 'm', 'o':
		return EnvironmentMac, nil
	default:
		return 0, &DecodeError{Field: "environment", Value: b}
	}
}

func (e Environment) String() string {
	switch e {
	case EnvironmentLinux:
		return "Linux"
	case EnvironmentWindows:
		return "Windows"
	case EnvironmentMac:
		return "Mac"
	default:
		return fmt.Sprintf("Environment(0x%02x)", byte(e))
	}
}

// MarshalText renders the environment by name.
func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (e *Environment) UnmarshalText(text []byte) error {
	for _, v := range []Environment{EnvironmentLinux, EnvironmentWindows, EnvironmentMac} {
		if v.String() == string(text) {
			*e = v
			return nil
		}
	}
	return fmt.Errorf("a2s: unknown environment %q", text)
}

// TheShipMode is the game mode reported by The Ship servers. Values outside the known set
// decode as TheShipModeUnknown.
type TheShipMode byte

// The Ship game modes.
const (
	TheShipModeHunt            TheShipMode = 0
	TheShipModeElimination     TheShipMode = 1
	TheShipModeDuel            TheShipMode = 2
	TheShipModeDeathmatch      TheShipMode = 3
	TheShipModeVIPTeam         TheShipMode = 4
	TheShipModeTeamElimination TheShipMode = 5
	TheShipModeUnknown         TheShipMode = 255
)

func parseTheShipMode(b byte) TheShipMode {
	if b <= byte(TheShipModeTeamElimination) {
		return TheShipMode(b)
	}
	return TheShipModeUnknown
}

var theShipModeNames = [...]string{"Hunt", "Elimination", "Duel", "Deathmatch", "VIP Team", "Team Elimination"}

func (m TheShipMode) String() string {
	if int(m) < len(theShipModeNames) {
		return theShipModeNames[m]
	}
	return "Unknown"
}

// TheShip holds the info fields only present for The Ship.
type TheShip struct {
	Mode      TheShipMode `json:"mode"`
	Witnesses uint8       `json:"witnesses"`
	Duration  uint8       `json:"duration"`
}

// SourceTV describes the spectator server attached to a game server.
type SourceTV struct {
	Name string `json:"name"`
	Port uint16 `json:"port"`
}

// Extra data flags selecting the optional trailing fields of an info response.
const (
	EDFGameID   byte = 0x01
	EDFSteamID  byte = 0x10
	EDFKeywords byte = 0x20
	EDFSourceTV byte = 0x40
	EDFPort     byte = 0x80
)

// Info is a decoded A2S_INFO response. Optional fields are nil when the server did not send
// them.
type Info struct {
	Name        string      `json:"name"`
	Map         string      `json:"map"`
	Folder      string      `json:"folder"`
	Game        string      `json:"game"`
	Version     string      `json:"version"`
	TheShip     *TheShip    `json:"the_ship,omitempty"`
	Port        *uint16     `json:"port,omitempty"`
	SteamID     *uint64     `json:"steam_id,omitempty"`
	Keywords    *string     `json:"keywords,omitempty"`
	GameID      *uint64     `json:"game_id,omitempty"`
	SourceTV    *SourceTV   `json:"source_tv,omitempty"`
	AppID       uint16      `json:"app_id"`
	Protocol    uint8       `json:"protocol"`
	Players     uint8       `json:"players"`
	MaxPlayers  uint8       `json:"max_players"`
	Bots        uint8       `json:"bots"`
	ServerType  ServerType  `json:"server_type"`
	Environment Environment `json:"environment"`
	Visibility  bool        `json:"visibility"`
	VAC         bool        `json:"vac"`

	// EDF is the extra data flags byte, zero when the response ended before it.
	EDF byte `json:"edf"`
}

// extraDataFields lists the optional info fields in wire order.
var extraDataFields = []struct {
	decode func(*reader, *Info) error
	encode func(*writer, *Info) error
	flag   byte
}{
	{
		flag: EDFPort,
		decode: func(r *reader, i *Info) error {
			v, err := r.uint16("port")
			if err != nil {
				return err
			}
			i.Port = &v
			return nil
		},
		encode: func(w *writer, i *Info) error {
			if i.Port == nil {
				return errMissingField("port")
			}
			w.uint16(*i.Port)
			return nil
		},
	},
	{
		flag: EDFSteamID,
		decode: func(r *reader, i *Info) error {
			v, err := r.uint64("steam id")
			if err != nil {
				return err
			}
			i.SteamID = &v
			return nil
		},
		encode: func(w *writer, i *Info) error {
			if i.SteamID == nil {
				return errMissingField("steam id")
			}
			w.uint64(*i.SteamID)
			return nil
		},
	},
	{
		flag: EDFKeywords,
		decode: func(r *reader, i *Info) error {
			v, err := r.string("keywords")
			if err != nil {
				return err
			}
			i.Keywords = &v
			return nil
		},
		encode: func(w *writer, i *Info) error {
			if i.Keywords == nil {
				return errMissingField("keywords")
			}
			w.string(*i.Keywords)
			return nil
		},
	},
	{
		flag: EDFGameID,
		decode: func(r *reader, i *Info) error {
			v, err := r.uint64("game id")
			if err != nil {
				return err
			}
			i.GameID = &v
			return nil
		},
		encode: func(w *writer, i *Info) error {
			if i.GameID == nil {
				return errMissingField("game id")
			}
			w.uint64(*i.GameID)
			return nil
		},
	},
	{
		flag: EDFSourceTV,
		decode: func(r *reader, i *Info) error {
			var tv SourceTV
			var err error
			if tv.Port, err = r.uint16("sourcetv port"); err != nil {
				return err
			}
			if tv.Name, err = r.string("sourcetv name"); err != nil {
				return err
			}
			i.SourceTV = &tv
			return nil
		},
		encode: func(w *writer, i *Info) error {
			if i.SourceTV == nil {
				return errMissingField("sourcetv")
			}
			w.uint16(i.SourceTV.Port)
			w.string(i.SourceTV.Name)
			return nil
		},
	},
}

func errMissingField(name string) error {
	return fmt.Errorf("a2s: extra data flag set for %s but field is nil", name)
}

// ParseInfo decodes an A2S_INFO payload, starting at its 0x49 discriminant.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := info.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &info, nil
}

// UnmarshalBinary decodes an A2S_INFO payload into the receiving Info. This satisfies the
// encoding.BinaryUnmarshaler interface.
func (i *Info) UnmarshalBinary(data []byte) error {
	r := newReader(data)

	kind, err := r.uint8("response type")
	if err != nil {
		return err
	}
	if kind != responseInfo {
		return fmt.Errorf("%w: expected info 0x%02x, got 0x%02x", ErrInvalidResponse, responseInfo, kind)
	}

	*i = Info{}

	if i.Protocol, err = r.uint8("protocol"); err != nil {
		return err
	}
	if i.Name, err = r.string("name"); err != nil {
		return err
	}
	if i.Map, err = r.string("map"); err != nil {
		return err
	}
	if i.Folder, err = r.string("folder"); err != nil {
		return err
	}
	if i.Game, err = r.string("game"); err != nil {
		return err
	}
	if i.AppID, err = r.uint16("app id"); err != nil {
		return err
	}
	if i.Players, err = r.uint8("players"); err != nil {
		return err
	}
	if i.MaxPlayers, err = r.uint8("max players"); err != nil {
		return err
	}
	if i.Bots, err = r.uint8("bots"); err != nil {
		return err
	}

	b, err := r.uint8("server type")
	if err != nil {
		return err
	}
	if i.ServerType, err = parseServerType(b); err != nil {
		return err
	}

	if b, err = r.uint8("environment"); err != nil {
		return err
	}
	if i.Environment, err = parseEnvironment(b); err != nil {
		return err
	}

	if i.Visibility, err = r.bool("visibility"); err != nil {
		return err
	}
	if i.VAC, err = r.bool("vac"); err != nil {
		return err
	}

	if i.AppID == AppIDTheShip {
		var ship TheShip
		if b, err = r.uint8("the ship mode"); err != nil {
			return err
		}
		ship.Mode = parseTheShipMode(b)
		if ship.Witnesses, err = r.uint8("the ship witnesses"); err != nil {
			return err
		}
		if ship.Duration, err = r.uint8("the ship duration"); err != nil {
			return err
		}
		i.TheShip = &ship
	}

	if i.Version, err = r.string("version"); err != nil {
		return err
	}

	// The flags byte is optional: older servers end the response after the version.
	if r.remaining() == 0 {
		return nil
	}
	i.EDF, _ = r.uint8("extra data flags")

	for _, f := range extraDataFields {
		if i.EDF&f.flag == 0 {
			continue
		}
		if err := f.decode(r, i); err != nil {
			return err
		}
	}

	return nil
}

// MarshalBinary encodes the receiving Info as an A2S_INFO payload, without the single-packet
// header. Optional fields are written for each flag set in EDF.
func (i *Info) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.uint8(responseInfo)
	w.uint8(i.Protocol)
	w.string(i.Name)
	w.string(i.Map)
	w.string(i.Folder)
	w.string(i.Game)
	w.uint16(i.AppID)
	w.uint8(i.Players)
	w.uint8(i.MaxPlayers)
	w.uint8(i.Bots)
	w.uint8(byte(i.ServerType))
	w.uint8(byte(i.Environment))
	w.bool(i.Visibility)
	w.bool(i.VAC)

	if i.AppID == AppIDTheShip {
		if i.TheShip == nil {
			return nil, errMissingField("the ship")
		}
		w.uint8(byte(i.TheShip.Mode))
		w.uint8(i.TheShip.Witnesses)
		w.uint8(i.TheShip.Duration)
	}

	w.string(i.Version)

	if i.EDF == 0 {
		return w.bytes(), nil
	}
	w.uint8(i.EDF)

	for _, f := range extraDataFields {
		if i.EDF&f.flag == 0 {
			continue
		}
		if err := f.encode(w, i); err != nil {
			return nil, err
		}
	}

	return w.bytes(), nil
}
