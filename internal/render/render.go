// Package render prints snapshots and targets as JSON or as text tables.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

// Sections selects the parts of a snapshot that are printed as tables.
type Sections struct {
	Info    bool
	Players bool
	Rules   bool
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Snapshots writes snaps in the given format.
func Snapshots(w io.Writer, format string, sections Sections, snaps []models.Snapshot) error {
	if format == config.FormatJSON {
		if len(snaps) == 1 {
			return JSON(w, snaps[0])
		}
		return JSON(w, snaps)
	}

	for i := range snaps {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := Snapshot(w, sections, &snaps[i]); err != nil {
			return err
		}
	}

	return nil
}

// Snapshot writes the selected sections of one snapshot as tables.
func Snapshot(w io.Writer, sections Sections, s *models.Snapshot) error {
	if _, err := fmt.Fprintf(w, "%s\n", s.Address); err != nil {
		return err
	}

	if s.InfoError != "" {
		_, err := fmt.Fprintf(w, "error: %s\n", s.InfoError)
		return err
	}

	if sections.Info && s.Info != nil {
		newTable(w, []string{"Field", "Value"}, infoRows(s)).Render()
	}

	if sections.Players {
		if s.PlayersError != "" {
			if _, err := fmt.Fprintf(w, "players error: %s\n", s.PlayersError); err != nil {
				return err
			}
		} else {
			header, rows := playerRows(s.Players)
			newTable(w, header, rows).Render()
		}
	}

	if sections.Rules {
		if s.RulesError != "" {
			if _, err := fmt.Fprintf(w, "rules error: %s\n", s.RulesError); err != nil {
				return err
			}
		} else {
			rows := make([][]string, 0, len(s.Rules))
			for _, r := range s.Rules {
				rows = append(rows, []string{r.Name, r.Value})
			}
			newTable(w, []string{"Rule", "Value"}, rows).Render()
		}
	}

	return nil
}

// Targets writes stored targets as a table.
func Targets(w io.Writer, targets []models.Target) {
	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, []string{
			t.Address,
			t.Label,
			t.CountryCode,
			t.FirstSeen.Format(time.RFC3339),
			t.LastSeen.Format(time.RFC3339),
		})
	}

	newTable(w, []string{"Address", "Label", "Country", "First Seen", "Last Seen"}, rows).Render()
}

func newTable(w io.Writer, header []string, rows [][]string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.AppendBulk(rows)
	return tw
}

func infoRows(s *models.Snapshot) [][]string {
	i := s.Info
	rows := [][]string{
		{"Name", i.Name},
		{"Map", i.Map},
		{"Game", fmt.Sprintf("%s (%s)", i.Game, i.Folder)},
		{"App ID", strconv.Itoa(int(i.AppID))},
		{"Players", fmt.Sprintf("%d/%d (%d bots)", i.Players, i.MaxPlayers, i.Bots)},
		{"Server", fmt.Sprintf("%s, %s", i.ServerType, i.Environment)},
		{"Password", yesNo(i.Visibility)},
		{"VAC", yesNo(i.VAC)},
		{"Version", i.Version},
		{"Protocol", strconv.Itoa(int(i.Protocol))},
	}

	if i.TheShip != nil {
		rows = append(rows, []string{
			"The Ship",
			fmt.Sprintf("%s, %d witnesses, %ds", i.TheShip.Mode, i.TheShip.Witnesses, i.TheShip.Duration),
		})
	}
	if i.Port != nil {
		rows = append(rows, []string{"Game Port", strconv.Itoa(int(*i.Port))})
	}
	if i.SteamID != nil {
		rows = append(rows, []string{"Steam ID", strconv.FormatUint(*i.SteamID, 10)})
	}
	if i.Keywords != nil {
		rows = append(rows, []string{"Keywords", *i.Keywords})
	}
	if i.GameID != nil {
		rows = append(rows, []string{"Game ID", strconv.FormatUint(*i.GameID, 10)})
	}
	if i.SourceTV != nil {
		rows = append(rows, []string{"SourceTV", fmt.Sprintf("%s on port %d", i.SourceTV.Name, i.SourceTV.Port)})
	}

	if s.CountryCode != "" {
		rows = append(rows, []string{"Country", s.CountryCode})
	}
	rows = append(rows, []string{"Ping", time.Duration(s.Ping).Round(time.Millisecond).String()})

	return rows
}

func playerRows(players []a2s.Player) ([]string, [][]string) {
	header := []string{"#", "Name", "Score", "Connected"}
	ship := len(players) > 0 && players[0].TheShip != nil
	if ship {
		header = append(header, "Deaths", "Money")
	}

	rows := make([][]string, 0, len(players))
	for _, p := range players {
		row := []string{
			strconv.Itoa(int(p.Index)),
			p.Name,
			strconv.Itoa(int(p.Score)),
			p.Connected().Round(time.Second).String(),
		}
		if ship && p.TheShip != nil {
			row = append(row, strconv.FormatUint(uint64(p.TheShip.Deaths), 10), strconv.FormatUint(uint64(p.TheShip.Money), 10))
		}
		rows = append(rows, row)
	}

	return header, rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
