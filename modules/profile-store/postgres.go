package profilestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	trust_score   INTEGER NOT NULL DEFAULT 50 CHECK (trust_score BETWEEN 0 AND 100),
	is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	selfie_image  TEXT NOT NULL DEFAULT '',
	mobile_number TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresConfig configures the pgx pool.
type PostgresConfig struct {
	URL      string
	MaxConns int32
	// Migrate creates the profiles table when missing.
	Migrate bool
}

// PostgresStore keeps profiles in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var newPool = pgxpool.NewWithConfig

// OpenPostgres connects a pool and optionally applies the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if cfg.Migrate {
		if _, err := pool.Exec(ctx, postgresSchema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: schema: %w", err)
		}
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Read implements Store.
func (s *PostgresStore) Read(ctx context.Context, subjectID string) (Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, trust_score, is_verified, selfie_image, mobile_number, updated_at
		 FROM profiles WHERE id = $1`, subjectID,
	).Scan(&p.SubjectID, &p.Name, &p.TrustScore, &p.IsVerified, &p.SelfieImage, &p.MobileNumber, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("postgres: read profile: %w", err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, subjectID string, u Update) error {
	clauses, args := setClauses(u, func(n int) string { return "$" + strconv.Itoa(n) })
	args = append(args, s.now().UTC())
	clauses = append(clauses, "updated_at = $"+strconv.Itoa(len(args)))
	args = append(args, subjectID)

	tag, err := s.pool.Exec(ctx,
		"UPDATE profiles SET "+strings.Join(clauses, ", ")+" WHERE id = $"+strconv.Itoa(len(args)), args...)
	if err != nil {
		return fmt.Errorf("postgres: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Put implements Seeder.
func (s *PostgresStore) Put(ctx context.Context, p Profile) error {
	p, err := normalize(p, s.now())
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (id, name, trust_score, is_verified, selfie_image, mobile_number, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trust_score = EXCLUDED.trust_score,
			is_verified = EXCLUDED.is_verified,
			selfie_image = EXCLUDED.selfie_image,
			mobile_number = EXCLUDED.mobile_number,
			updated_at = EXCLUDED.updated_at`,
		p.SubjectID, p.Name, p.TrustScore, p.IsVerified, p.SelfieImage, p.MobileNumber, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put profile: %w", err)
	}
	return nil
}
