// Package settings reads the user-facing overlay settings. Values are looked up
// on every call so changes apply without a restart.
package settings

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// Setting names, matching the platform's system settings table.
const (
	KeyCustomIcon           = "omni_custom_fp_icon"
	KeyAnimation            = "fod_anim"
	KeyRecognizingAnimation = "fod_recognizing_animation"
	KeyScreenBrightness     = "screen_brightness"
)

// DefaultScreenBrightness is used when no brightness is stored.
const DefaultScreenBrightness = 100

// Store is the read-only view the overlay uses.
type Store interface {
	Int(key string, def int) int
	String(key string) string
}

// SQLStore keeps settings in a sqlite name/value table.
type SQLStore struct {
	db  *sql.DB
	log *logrus.Entry
}

const schema = `CREATE TABLE IF NOT EXISTS system (
	name  TEXT PRIMARY KEY,
	value TEXT
)`

// Open opens (creating if needed) the settings database at path. Use
// ":memory:" for a private in-memory store.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open settings %s", path)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create settings table")
	}

	return &SQLStore{db: db, log: pfxlog.ContextLogger("settings").Entry}, nil
}

func (s *SQLStore) lookup(key string) (string, bool) {
	var value sql.NullString
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM system WHERE name = ?`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.WithError(err).WithField("key", key).Warn("settings lookup failed")
		}
		return "", false
	}
	return value.String, value.Valid
}

// Int returns the integer stored under key, or def when absent or malformed.
func (s *SQLStore) Int(key string, def int) int {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.log.WithField("key", key).Debugf("not an integer: %q", raw)
		return def
	}
	return v
}

// String returns the value stored under key, or "" when absent.
func (s *SQLStore) String(key string) string {
	raw, _ := s.lookup(key)
	return raw
}

// Put stores value under key.
func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		key, value)
	return errors.Wrapf(err, "put %s", key)
}

// Delete removes key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system WHERE name = ?`, key)
	return errors.Wrapf(err, "delete %s", key)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
