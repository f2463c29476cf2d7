// Package fake provides a local A2S responder and random server data for tests and
// development.
package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/storage"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

var (
	games = []struct {
		game, folder string
		maps         []string
		appID        uint32
	}{
		{"Counter-Strike: Source", "cstrike", []string{"de_dust2", "de_inferno", "cs_office", "de_nuke"}, 240},
		{"Team Fortress", "tf", []string{"cp_badlands", "ctf_2fort", "pl_upward", "koth_harvest"}, 440},
		{"Garry's Mod", "garrysmod", []string{"gm_construct", "gm_flatgrass", "rp_downtown"}, 4000},
		{"DayZ", "dayz", []string{"chernarusplus", "livonia", "namalsk", "sakhal"}, 221100},
		{"The Ship", "ship", []string{"batavier", "paddington", "rhine"}, a2s.AppIDTheShip},
	}
	nicknames = []string{"gordon", "alyx", "barney", "eli", "kleiner", "breen", "mossman", "vortigaunt", "dog", "odessa"}
	countries = []string{"US", "DE", "RU", "BR", "FR", "GB", "PL", "CZ", "NL", "SE", "JP", "AU", "CA", "UA", "KZ"}
)

// RandomServerConfig returns a responder configuration with random but self-consistent info,
// players and rules, derived from seed.
func RandomServerConfig(seed int64) ServerConfig {
	rnd := rand.New(rand.NewSource(seed))
	g := games[rnd.Intn(len(games))]
	// The info record only carries 16-bit application ids.
	var appID uint16
	if g.appID <= 0xFFFF {
		appID = uint16(g.appID)
	}

	maxPlayers := uint8(8 + rnd.Intn(57))
	players := make([]a2s.Player, rnd.Intn(int(maxPlayers)/2+1))
	for i := range players {
		players[i] = a2s.Player{
			Index:    uint8(i),
			Name:     fmt.Sprintf("%s%d", nicknames[rnd.Intn(len(nicknames))], rnd.Intn(100)),
			Score:    int32(rnd.Intn(80) - 5),
			Duration: float32(rnd.Intn(7200)) + rnd.Float32(),
		}
		if appID == a2s.AppIDTheShip {
			players[i].TheShip = &a2s.TheShipPlayer{Deaths: uint32(rnd.Intn(20)), Money: uint32(rnd.Intn(5000))}
		}
	}

	rules := []a2s.Rule{
		{Name: "sv_gravity", Value: "800"},
		{Name: "mp_timelimit", Value: fmt.Sprint(10 * (1 + rnd.Intn(6)))},
		{Name: "mp_friendlyfire", Value: fmt.Sprint(rnd.Intn(2))},
		{Name: "sv_alltalk", Value: fmt.Sprint(rnd.Intn(2))},
	}
	for i := rnd.Intn(30); i > 0; i-- {
		rules = append(rules, a2s.Rule{Name: fmt.Sprintf("sm_plugin_%02d_version", i), Value: fmt.Sprintf("1.%d.%d", rnd.Intn(10), rnd.Intn(30))})
	}

	port := uint16(27015 + rnd.Intn(10))
	keywords := "secure"
	info := &a2s.Info{
		Protocol:    17,
		Name:        fmt.Sprintf("%s Server #%d", g.folder, rnd.Intn(1000)),
		Map:         g.maps[rnd.Intn(len(g.maps))],
		Folder:      g.folder,
		Game:        g.game,
		AppID:       appID,
		Players:     uint8(len(players)),
		MaxPlayers:  maxPlayers,
		Bots:        uint8(rnd.Intn(3)),
		ServerType:  a2s.ServerTypeDedicated,
		Environment: []a2s.Environment{a2s.EnvironmentLinux, a2s.EnvironmentWindows}[rnd.Intn(2)],
		VAC:         rnd.Intn(2) == 1,
		Version:     fmt.Sprintf("1.%d.%d", rnd.Intn(30), rnd.Intn(200)),
		EDF:         a2s.EDFPort | a2s.EDFKeywords | a2s.EDFGameID,
		Port:        &port,
		Keywords:    &keywords,
		GameID:      new(uint64),
	}
	*info.GameID = uint64(g.appID)
	if appID == a2s.AppIDTheShip {
		info.TheShip = &a2s.TheShip{
			Mode:      a2s.TheShipMode(rnd.Intn(6)),
			Witnesses: uint8(rnd.Intn(4)),
			Duration:  uint8(30 + rnd.Intn(60)),
		}
	}

	return ServerConfig{
		Info:     info,
		Players:  players,
		Rules:    rules,
		AppID:    appID,
		Compress: rnd.Intn(4) == 0,
	}
}

// GenerateData populates the storage with count randomized targets, each with a short
// history of snapshots spread over the last 30 days.
func GenerateData(store *storage.Repository, count int) {
	written := 0

	for i := 0; i < count; i++ {
		seed := rand.Int63()
		cfg := RandomServerConfig(seed)
		address := fmt.Sprintf("%d.%d.%d.%d:%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(254)+1, *cfg.Info.Port)
		country := countries[rand.Intn(len(countries))]

		if err := store.UpsertTarget(models.Target{
			Address:     address,
			Label:       cfg.Info.Name,
			AppID:       cfg.AppID,
			CountryCode: country,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake target")
			continue
		}

		takenAt := time.Now().Add(-time.Duration(rand.Intn(30*24)) * time.Hour)
		for n := 1 + rand.Intn(5); n > 0; n-- {
			snap := models.Snapshot{
				Address:     address,
				CountryCode: country,
				TakenAt:     takenAt,
				Ping:        models.Duration(time.Duration(5+rand.Intn(250)) * time.Millisecond),
				Info:        cfg.Info,
				Players:     cfg.Players,
				Rules:       cfg.Rules,
			}

			// 10% chance of a server being down at that time
			if rand.Float32() < 0.1 {
				snap.Info, snap.Players, snap.Rules = nil, nil, nil
				snap.Ping = 0
				snap.InfoError = a2s.ErrTimeout.Error()
			}

			ok, err := store.SaveSnapshot(snap)
			if err != nil {
				log.Warn().Err(err).Str("addr", address).Msg("Failed to generate fake snapshot")
				break
			}
			if ok {
				written++
			}

			// Next round a little later, with a changed map or crowd.
			takenAt = takenAt.Add(time.Duration(1+rand.Intn(12)) * time.Hour)
			next := *cfg.Info
			if maps := mapsOf(next.Folder); len(maps) > 0 {
				next.Map = maps[rand.Intn(len(maps))]
			}
			next.Players = uint8(rand.Intn(int(next.MaxPlayers) + 1))
			cfg.Info = &next
		}
	}

	log.Info().Int("targets", count).Int("snapshots", written).Msg("Fake data generated")
}

func mapsOf(folder string) []string {
	for _, g := range games {
		if g.folder == folder {
			return g.maps
		}
	}
	return nil
}
