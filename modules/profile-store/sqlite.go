package profilestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	trust_score   INTEGER NOT NULL DEFAULT 50 CHECK (trust_score BETWEEN 0 AND 100),
	is_verified   INTEGER NOT NULL DEFAULT 0,
	selfie_image  TEXT NOT NULL DEFAULT '',
	mobile_number TEXT NOT NULL DEFAULT '',
	updated_at    TEXT NOT NULL
)`

// SQLiteConfig defines SQLite operational parameters.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the recommended configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// SQLiteStore keeps profiles in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
//
// WAL mode and busy_timeout are set in the DSN so they apply to every pooled connection.
func OpenSQLite(ctx context.Context, path string, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.BusyTimeout <= 0 || cfg.MaxOpenConns <= 0 {
		cfg = DefaultSQLiteConfig()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, subjectID string) (Profile, error) {
	var (
		p         Profile
		verified  int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, trust_score, is_verified, selfie_image, mobile_number, updated_at
		 FROM profiles WHERE id = ?`, subjectID,
	).Scan(&p.SubjectID, &p.Name, &p.TrustScore, &verified, &p.SelfieImage, &p.MobileNumber, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("sqlite: read profile: %w", err)
	}

	p.IsVerified = verified != 0
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Profile{}, fmt.Errorf("sqlite: parse updated_at: %w", err)
	}
	return p, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, subjectID string, u Update) error {
	clauses, args := setClauses(u, func(int) string { return "?" })
	clauses = append(clauses, "updated_at = ?")
	args = append(args, s.now().UTC().Format(time.RFC3339Nano), subjectID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET "+strings.Join(clauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("sqlite: update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update profile: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Put implements Seeder.
func (s *SQLiteStore) Put(ctx context.Context, p Profile) error {
	p, err := normalize(p, s.now())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, trust_score, is_verified, selfie_image, mobile_number, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trust_score = excluded.trust_score,
			is_verified = excluded.is_verified,
			selfie_image = excluded.selfie_image,
			mobile_number = excluded.mobile_number,
			updated_at = excluded.updated_at`,
		p.SubjectID, p.Name, p.TrustScore, p.IsVerified, p.SelfieImage, p.MobileNumber,
		p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put profile: %w", err)
	}
	return nil
}
