package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch means the queue file was written by a different schema.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var tables int
	if err := s.db.GetContext(ctx, &tables,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`); err != nil {
		return fmt.Errorf("check queue schema: %w", err)
	}
	if tables == 0 {
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create queue schema: %w", err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
			return err
		})
	}

	var version int
	if err := s.db.GetContext(ctx, &version, `SELECT version FROM schema_version LIMIT 1`); err != nil {
		return fmt.Errorf("read queue schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: %s is version %d, this build expects %d; remove it to start an empty queue",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}
