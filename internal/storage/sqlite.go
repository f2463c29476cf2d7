// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/a2squery/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertTarget inserts a new target or updates an existing one by address. The label and
// country are only overwritten by non-empty values.
func (r *Repository) UpsertTarget(t models.Target) error {
	now := time.Now().UTC()
	if t.FirstSeen.IsZero() {
		t.FirstSeen = now
	}
	if t.LastSeen.IsZero() {
		t.LastSeen = now
	}

	_, err := r.db.Exec(`
	INSERT INTO targets (address, label, app_id, country_code, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		label        = CASE WHEN excluded.label != '' THEN excluded.label ELSE targets.label END,
		app_id       = CASE WHEN excluded.app_id != 0 THEN excluded.app_id ELSE targets.app_id END,
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE targets.country_code END,
		last_seen    = excluded.last_seen;
	`, t.Address, t.Label, t.AppID, t.CountryCode, t.FirstSeen.UTC(), t.LastSeen.UTC())

	return err
}

// DeleteTarget removes a target and its snapshots. It reports whether the target existed.
func (r *Repository) DeleteTarget(address string) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM snapshots WHERE address = ?`, address); err != nil {
		return false, err
	}

	res, err := tx.Exec(`DELETE FROM targets WHERE address = ?`, address)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, tx.Commit()
}

const targetColumns = `address, label, app_id, country_code, first_seen, last_seen`

func scanTarget(row interface{ Scan(...any) error }) (models.Target, error) {
	var t models.Target
	err := row.Scan(&t.Address, &t.Label, &t.AppID, &t.CountryCode, &t.FirstSeen, &t.LastSeen)
	return t, err
}

// GetTargets retrieves all targets, sorted by the last seen timestamp in descending order.
func (r *Repository) GetTargets() ([]models.Target, error) {
	rows, err := r.db.Query(`SELECT ` + targetColumns + ` FROM targets ORDER BY last_seen DESC, address`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var targets []models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return targets, nil
}

// GetTarget retrieves a target by address. It returns nil without error when not found.
func (r *Repository) GetTarget(address string) (*models.Target, error) {
	t, err := scanTarget(r.db.QueryRow(`SELECT `+targetColumns+` FROM targets WHERE address = ?`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// SaveSnapshot stores s unless its fingerprint matches the last snapshot stored for the same
// address, in which case only the target's last seen time is refreshed. It reports whether a
// new snapshot row was written. Unknown addresses are registered as targets.
func (r *Repository) SaveSnapshot(s models.Snapshot) (bool, error) {
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}
	s.TakenAt = s.TakenAt.UTC()
	fp := int64(Fingerprint(&s))

	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		prev      int64
		snapshots int
	)
	err = tx.QueryRow(`
		SELECT t.fingerprint, (SELECT COUNT(1) FROM snapshots s WHERE s.address = t.address)
		FROM targets t WHERE t.address = ?
	`, s.Address).Scan(&prev, &snapshots)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if err == nil && snapshots > 0 && prev == fp {
		if _, err := tx.Exec(`UPDATE targets SET last_seen = ? WHERE address = ?`, s.TakenAt, s.Address); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	data, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := tx.Exec(`
	INSERT INTO targets (address, country_code, fingerprint, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		fingerprint  = excluded.fingerprint,
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE targets.country_code END,
		last_seen    = excluded.last_seen;
	`, s.Address, s.CountryCode, fp, s.TakenAt, s.TakenAt); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
	INSERT INTO snapshots (address, taken_at, ping_ms, country_code, fingerprint, data)
	VALUES (?, ?, ?, ?, ?, ?)
	`, s.Address, s.TakenAt, time.Duration(s.Ping).Milliseconds(), s.CountryCode, fp, string(data)); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// LatestSnapshot returns the most recent snapshot of address. It returns nil without error
// when none is stored.
func (r *Repository) LatestSnapshot(address string) (*models.Snapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM snapshots WHERE address = ? ORDER BY taken_at DESC, id DESC LIMIT 1
	`, address).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s models.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", address, err)
	}

	return &s, nil
}

// PruneSnapshots deletes snapshots taken before olderThan, always keeping the latest one of
// every target, and returns the number of deleted rows.
func (r *Repository) PruneSnapshots(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM snapshots
		WHERE taken_at < ?
		  AND id NOT IN (SELECT MAX(id) FROM snapshots GROUP BY address)
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// Fingerprint hashes the parts of a snapshot that describe server state. Timing, ping and
// player connection durations are left out so an idle server keeps a stable fingerprint.
func Fingerprint(s *models.Snapshot) uint64 {
	d := xxhash.New()
	field := func(v string) {
		_, _ = d.WriteString(v)
		_, _ = d.Write([]byte{0})
	}

	field(s.Address)
	if s.Info != nil {
		info, _ := json.Marshal(s.Info)
		_, _ = d.Write(info)
	}
	field(s.InfoError)

	for _, p := range s.Players {
		field(p.Name)
		field(strconv.FormatInt(int64(p.Score), 10))
	}
	field(s.PlayersError)

	for _, rule := range s.Rules {
		field(rule.Name)
		field(rule.Value)
	}
	field(s.RulesError)

	return d.Sum64()
}
