package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"loopdeck/internal/config"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrConflict marks a compare-and-set that lost to a concurrent writer.
var ErrConflict = errors.New("concurrent rights update")

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Entry is a catalog row. An entry is live until it is retracted; retracted
// rows stay for audit.
type Entry struct {
	SourceID      string
	Title         string
	Segment       json.RawMessage
	Separation    json.RawMessage
	Alignment     json.RawMessage
	Rights        rights.Document
	Objects       []string
	PublishedAt   time.Time
	RetractedAt   *time.Time
	RetractReason string
}

// Live reports whether the entry is currently published.
func (e Entry) Live() bool { return e.RetractedAt == nil }

type rightsRow struct {
	SourceID          string `db:"source_id"`
	Uploader          string `db:"uploader"`
	License           string `db:"license"`
	AcquisitionMethod string `db:"acquisition_method"`
	AcquiredAt        string `db:"acquired_at"`
	LicenseState      string `db:"license_state"`
	RejectionReason   string `db:"rejection_reason"`
	EvidenceURI       string `db:"evidence_uri"`
	Version           int64  `db:"version"`
	UpdatedAt         string `db:"updated_at"`
}

func (r rightsRow) record() rights.Record {
	return rights.Record{
		SourceID: r.SourceID,
		Uploader: r.Uploader,
		License:  r.License,
		Provenance: rights.Provenance{
			AcquisitionMethod: r.AcquisitionMethod,
			Timestamp:         parseTime(r.AcquiredAt),
		},
		State:           rights.State(r.LicenseState),
		RejectionReason: r.RejectionReason,
		EvidenceURI:     r.EvidenceURI,
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
}

type historyRow struct {
	ID          string `db:"id"`
	SourceID    string `db:"source_id"`
	FromState   string `db:"from_state"`
	ToState     string `db:"to_state"`
	EvidenceURI string `db:"evidence_uri"`
	Reason      string `db:"reason"`
	Actor       string `db:"actor"`
	ChangedAt   string `db:"changed_at"`
}

type entryRow struct {
	SourceID      string         `db:"source_id"`
	Title         string         `db:"title"`
	Segment       string         `db:"segment"`
	Separation    string         `db:"separation"`
	Alignment     string         `db:"alignment"`
	Rights        string         `db:"rights"`
	Objects       string         `db:"objects"`
	PublishedAt   string         `db:"published_at"`
	RetractedAt   sql.NullString `db:"retracted_at"`
	RetractReason string         `db:"retract_reason"`
}

func (r entryRow) entry() (Entry, error) {
	e := Entry{
		SourceID:      r.SourceID,
		Title:         r.Title,
		Segment:       json.RawMessage(r.Segment),
		Separation:    json.RawMessage(r.Separation),
		Alignment:     json.RawMessage(r.Alignment),
		PublishedAt:   parseTime(r.PublishedAt),
		RetractReason: r.RetractReason,
	}
	if err := json.Unmarshal([]byte(r.Rights), &e.Rights); err != nil {
		return Entry{}, fmt.Errorf("decode rights snapshot for %s: %w", r.SourceID, err)
	}
	if err := json.Unmarshal([]byte(r.Objects), &e.Objects); err != nil {
		return Entry{}, fmt.Errorf("decode object list for %s: %w", r.SourceID, err)
	}
	if r.RetractedAt.Valid {
		t := parseTime(r.RetractedAt.String)
		e.RetractedAt = &t
	}
	return e, nil
}

// Store persists rights records, their history and catalog entries.
type Store struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

// Open opens the catalog database under the state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.CatalogDBPath())
}

// OpenPath opens the catalog database at path. Write transactions start
// IMMEDIATE so a publish holds the write lock from its rights re-read to
// its commit.
func OpenPath(path string) (*Store, error) {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")
	db, err := sqlx.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	if err := s.db.GetContext(ctx, &exists,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("check catalog schema: %w", err)
	}
	if exists == 0 {
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create catalog schema: %w", err)
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
			return err
		})
	}
	var version int
	if err := s.db.GetContext(ctx, &version, "SELECT version FROM schema_version LIMIT 1"); err != nil {
		return fmt.Errorf("read catalog schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("catalog schema version %d at %s, expected %d", version, s.path, schemaVersion)
	}
	return nil
}

// withTx runs fn in a transaction, retrying when SQLite reports busy.
func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	delay := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRights inserts the initial record for a Track. It reports false
// when a record already exists; existing records are never overwritten.
func (s *Store) CreateRights(ctx context.Context, rec rights.Record) (bool, error) {
	if rec.State == "" {
		rec.State = rights.StatePending
	}
	if rec.State != rights.StatePending {
		return false, services.Wrap(services.ErrValidation, "rights", "create record",
			fmt.Sprintf("new records start in %s, got %s", rights.StatePending, rec.State), nil)
	}
	now := s.now()
	if rec.Provenance.Timestamp.IsZero() {
		rec.Provenance.Timestamp = now
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO rights
		(source_id, uploader, license, acquisition_method, acquired_at, license_state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO NOTHING`,
		rec.SourceID, rec.Uploader, rec.License, rec.Provenance.AcquisitionMethod,
		formatTime(rec.Provenance.Timestamp), string(rec.State), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("insert rights for %s: %w", rec.SourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Rights returns the current record.
func (s *Store) Rights(ctx context.Context, sourceID string) (rights.Record, error) {
	row, err := getRights(ctx, s.db, sourceID)
	if err != nil {
		return rights.Record{}, err
	}
	return row.record(), nil
}

// ListRights returns records in the given states, or every record.
func (s *Store) ListRights(ctx context.Context, states ...rights.State) ([]rights.Record, error) {
	query := "SELECT * FROM rights"
	var args []any
	if len(states) > 0 {
		values := make([]string, len(states))
		for i, st := range states {
			values[i] = string(st)
		}
		var err error
		query, args, err = sqlx.In("SELECT * FROM rights WHERE license_state IN (?)", values)
		if err != nil {
			return nil, err
		}
	}
	var rows []rightsRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query+" ORDER BY source_id"), args...); err != nil {
		return nil, fmt.Errorf("list rights: %w", err)
	}
	out := make([]rights.Record, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// History returns the clearance audit trail, oldest first.
func (s *Store) History(ctx context.Context, sourceID string) ([]rights.HistoryEntry, error) {
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM rights_history WHERE source_id = ? ORDER BY changed_at, rowid", sourceID); err != nil {
		return nil, fmt.Errorf("list rights history: %w", err)
	}
	out := make([]rights.HistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = rights.HistoryEntry{
			ID:          row.ID,
			SourceID:    row.SourceID,
			FromState:   rights.State(row.FromState),
			ToState:     rights.State(row.ToState),
			EvidenceURI: row.EvidenceURI,
			Reason:      row.Reason,
			Actor:       row.Actor,
			ChangedAt:   parseTime(row.ChangedAt),
		}
	}
	return out, nil
}

// Entry returns the catalog row for sourceID, live or retracted.
func (s *Store) Entry(ctx context.Context, sourceID string) (Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM entries WHERE source_id = ?", sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "catalog", "load entry", sourceID, nil)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load entry %s: %w", sourceID, err)
	}
	return row.entry()
}

// ListEntries returns catalog rows ordered by publish time.
func (s *Store) ListEntries(ctx context.Context, liveOnly bool) ([]Entry, error) {
	query := "SELECT * FROM entries"
	if liveOnly {
		query += " WHERE retracted_at IS NULL"
	}
	return s.selectEntries(ctx, query+" ORDER BY published_at, source_id")
}

// Violations returns live entries whose rights are no longer cleared.
func (s *Store) Violations(ctx context.Context) ([]Entry, error) {
	return s.selectEntries(ctx, `SELECT e.* FROM entries e
		JOIN rights r ON r.source_id = e.source_id
		WHERE e.retracted_at IS NULL AND r.license_state != ?
		ORDER BY e.source_id`, string(rights.StateCleared))
}

func (s *Store) selectEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Stats counts rights records per state and live entries.
func (s *Store) Stats(ctx context.Context) (map[rights.State]int, int, error) {
	var rows []struct {
		State string `db:"license_state"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT license_state, COUNT(*) AS n FROM rights GROUP BY license_state"); err != nil {
		return nil, 0, fmt.Errorf("count rights: %w", err)
	}
	states := make(map[rights.State]int, len(rows))
	for _, row := range rows {
		states[rights.State(row.State)] = row.Count
	}
	var live int
	if err := s.db.GetContext(ctx, &live, "SELECT COUNT(*) FROM entries WHERE retracted_at IS NULL"); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	return states, live, nil
}

func getRights(ctx context.Context, q sqlx.QueryerContext, sourceID string) (rightsRow, error) {
	var row rightsRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT * FROM rights WHERE source_id = ?", sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return rightsRow{}, services.Wrap(services.ErrNotFound, "rights", "load record", sourceID, nil)
	}
	if err != nil {
		return rightsRow{}, fmt.Errorf("load rights %s: %w", sourceID, err)
	}
	return row, nil
}

// stateChange is one compare-and-set on a rights row.
type stateChange struct {
	sourceID    string
	expected    int64
	from, to    rights.State
	evidenceURI string
	reason      string
	actor       string
	historyID   string
}

func (s *Store) applyStateChange(ctx context.Context, tx *sqlx.Tx, c stateChange) error {
	now := formatTime(s.now())
	res, err := tx.ExecContext(ctx, `UPDATE rights
		SET license_state = ?, evidence_uri = ?, rejection_reason = ?, version = version + 1, updated_at = ?
		WHERE source_id = ? AND version = ?`,
		string(c.to), c.evidenceURI, c.reason, now, c.sourceID, c.expected)
	if err != nil {
		return fmt.Errorf("update rights %s: %w", c.sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: %s changed since read", ErrConflict, c.sourceID)
	}
	_, err = tx.NamedExecContext(ctx, `INSERT INTO rights_history
		(id, source_id, from_state, to_state, evidence_uri, reason, actor, changed_at)
		VALUES (:id, :source_id, :from_state, :to_state, :evidence_uri, :reason, :actor, :changed_at)`,
		historyRow{
			ID:          c.historyID,
			SourceID:    c.sourceID,
			FromState:   string(c.from),
			ToState:     string(c.to),
			EvidenceURI: c.evidenceURI,
			Reason:      c.reason,
			Actor:       c.actor,
			ChangedAt:   now,
		})
	if err != nil {
		return fmt.Errorf("record rights history %s: %w", c.sourceID, err)
	}
	return nil
}

func (s *Store) upsertEntry(ctx context.Context, tx *sqlx.Tx, e Entry) error {
	rightsJSON, err := json.Marshal(e.Rights)
	if err != nil {
		return err
	}
	objects := e.Objects
	if objects == nil {
		objects = []string{}
	}
	objectsJSON, err := json.Marshal(objects)
	if err != nil {
		return err
	}
	_, err = tx.NamedExecContext(ctx, `INSERT INTO entries
		(source_id, title, segment, separation, alignment, rights, objects, published_at, retracted_at, retract_reason)
		VALUES (:source_id, :title, :segment, :separation, :alignment, :rights, :objects, :published_at, NULL, '')
		ON CONFLICT(source_id) DO UPDATE SET
			title = excluded.title, segment = excluded.segment, separation = excluded.separation,
			alignment = excluded.alignment, rights = excluded.rights, objects = excluded.objects,
			published_at = excluded.published_at, retracted_at = NULL, retract_reason = ''`,
		entryRow{
			SourceID:    e.SourceID,
			Title:       e.Title,
			Segment:     rawOrNull(e.Segment),
			Separation:  rawOrNull(e.Separation),
			Alignment:   rawOrNull(e.Alignment),
			Rights:      string(rightsJSON),
			Objects:     string(objectsJSON),
			PublishedAt: formatTime(e.PublishedAt),
		})
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.SourceID, err)
	}
	return nil
}

func (s *Store) retractEntry(ctx context.Context, sourceID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entries SET retracted_at = ?, retract_reason = ? WHERE source_id = ? AND retracted_at IS NULL",
		formatTime(s.now()), reason, sourceID)
	if err != nil {
		return false, fmt.Errorf("retract entry %s: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
