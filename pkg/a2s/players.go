package a2s

import (
	"fmt"
	"time"
)

// Player is one entry of an A2S_PLAYER response.
type Player struct {
	TheShip  *TheShipPlayer `json:"the_ship,omitempty"`
	Name     string         `json:"name"`
	Score    int32          `json:"score"`
	Duration float32        `json:"duration"`
	Index    uint8          `json:"index"`
}

// Connected returns how long the player has been on the server.
func (p Player) Connected() time.Duration {
	return time.Duration(float64(p.Duration) * float64(time.Second))
}

// TheShipPlayer holds the per-player fields only present for The Ship.
type TheShipPlayer struct {
	Deaths uint32 `json:"deaths"`
	Money  uint32 `json:"money"`
}

// ParsePlayers decodes an A2S_PLAYER payload, starting at its 0x44 discriminant. appID
// selects title-specific fields.
func ParsePlayers(data []byte, appID uint16) ([]Player, error) {
	r := newReader(data)

	kind, err := r.uint8("response type")
	if err != nil {
		return nil, err
	}
	if kind != responsePlayers {
		return nil, fmt.Errorf("%w: expected players 0x%02x, got 0x%02x", ErrInvalidResponse, responsePlayers, kind)
	}

	count, err := r.uint8("player count")
	if err != nil {
		return nil, err
	}

	players := make([]Player, 0, count)
	for n := 0; n < int(count); n++ {
		var p Player
		if p.Index, err = r.uint8("player index"); err != nil {
			return nil, err
		}
		if p.Name, err = r.string("player name"); err != nil {
			return nil, err
		}
		if p.Score, err = r.int32("player score"); err != nil {
			return nil, err
		}
		if p.Duration, err = r.float32("player duration"); err != nil {
			return nil, err
		}

		if appID == AppIDTheShip {
			var ship TheShipPlayer
			if ship.Deaths, err = r.uint32("player deaths"); err != nil {
				return nil, err
			}
			if ship.Money, err = r.uint32("player money"); err != nil {
				return nil, err
			}
			p.TheShip = &ship
		}

		players = append(players, p)
	}

	return players, nil
}

// EncodePlayers encodes players as an A2S_PLAYER payload, without the single-packet header.
func EncodePlayers(players []Player, appID uint16) ([]byte, error) {
	if len(players) > 255 {
		return nil, fmt.Errorf("a2s: %d players exceed the wire limit of 255", len(players))
	}

	w := &writer{}
	w.uint8(responsePlayers)
	w.uint8(uint8(len(players)))

	for _, p := range players {
		w.uint8(p.Index)
		w.string(p.Name)
		w.int32(p.Score)
		w.float32(p.Duration)

		if appID == AppIDTheShip {
			if p.TheShip == nil {
				return nil, errMissingField("the ship player")
			}
			w.uint32(p.TheShip.Deaths)
			w.uint32(p.TheShip.Money)
		}
	}

	return w.bytes(), nil
}
