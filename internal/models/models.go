// Package models defines the data structures used for API responses and database persistence.
package models

import (
	"strconv"
	"time"

	"github.com/woozymasta/a2squery/pkg/a2s"
)

// Target represents a watched game server stored in the database.
type Target struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Address     string    `json:"address"`
	Label       string    `json:"label,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	AppID       uint16    `json:"app_id,omitempty"`
}

// Snapshot is the result of querying one server at one point in time. Failed queries leave
// their record empty and set the matching error string, so a partial snapshot stays usable.
type Snapshot struct {
	TakenAt      time.Time    `json:"taken_at"`
	Info         *a2s.Info    `json:"info,omitempty"`
	Address      string       `json:"address"`
	CountryCode  string       `json:"country_code,omitempty"`
	InfoError    string       `json:"info_error,omitempty"`
	PlayersError string       `json:"players_error,omitempty"`
	RulesError   string       `json:"rules_error,omitempty"`
	Players      []a2s.Player `json:"players,omitempty"`
	Rules        []a2s.Rule   `json:"rules,omitempty"`
	Ping         Duration     `json:"ping"`
}

// Online reports whether the server answered the info query.
func (s *Snapshot) Online() bool {
	return s.Info != nil
}

// Duration is a time.Duration rendered as milliseconds in JSON.
type Duration time.Duration

// MarshalJSON encodes the duration as whole milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, time.Duration(d).Milliseconds(), 10), nil
}

// UnmarshalJSON decodes whole milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}

	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}
