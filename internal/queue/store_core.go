package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"loopdeck/internal/config"
)

// Store manages Track persistence backed by SQLite.
type Store struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

// busyPolicy bounds how long a write keeps retrying while another
// connection (the CLI fallback path, usually) holds the SQLite write lock.
var busyPolicy = struct {
	attempts   int
	firstDelay time.Duration
	maxDelay   time.Duration
}{attempts: 5, firstDelay: 10 * time.Millisecond, maxDelay: 200 * time.Millisecond}


// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath())
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	params := url.Values{}
	for _, pragma := range []string{"journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)"} {
		params.Add("_pragma", pragma)
	}
	db, err := sqlx.Open("sqlite", "file:"+dbPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SetClock overrides the store's time source. Tests use it to move past NotBefore.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == 5 // SQLITE_BUSY and its extended codes
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// onBusy runs op until it succeeds, fails with something other than
// SQLITE_BUSY, or the retry budget runs out.
func onBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyPolicy.firstDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !isBusy(err) || attempt == busyPolicy.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, busyPolicy.maxDelay)
	}
}

// exec runs a write and returns the number of rows it touched.
func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := onBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// withTx runs fn inside a transaction, retrying the whole unit on SQLITE_BUSY.
func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return onBusy(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// expandIn rewrites a query holding "IN (?)" for a slice argument.
func (s *Store) expandIn(query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return s.db.Rebind(query), args, nil
}
