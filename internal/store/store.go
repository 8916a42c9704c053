package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/gaze/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages the PostgreSQL pool holding people and their face samples.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS people (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_samples (
			id BIGSERIAL PRIMARY KEY,
			person_id INT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
			content BYTEA NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			type INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS face_samples_person_id_idx ON face_samples (person_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetOrCreatePerson returns the id of the person with this name, creating
// the row on first use.
func (s *Store) GetOrCreatePerson(ctx context.Context, name string) (int, error) {
	return getOrCreatePerson(ctx, s.pool, name)
}

func getOrCreatePerson(ctx context.Context, q querier, name string) (int, error) {
	var id int
	// The no-op update makes RETURNING work for existing rows too.
	err := q.QueryRow(ctx, `
		INSERT INTO people (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	return id, err
}

// GetPerson looks a person up by id. It returns nil without an error when no
// such person exists.
func (s *Store) GetPerson(ctx context.Context, id int) (*types.Person, error) {
	p := types.Person{ID: id}
	err := s.pool.QueryRow(ctx, "SELECT name, created_at FROM people WHERE id = $1", id).Scan(&p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateSample stores a face sample for an existing person.
func (s *Store) CreateSample(ctx context.Context, sample types.Sample) (int64, error) {
	return createSample(ctx, s.pool, sample)
}

func createSample(ctx context.Context, q querier, sample types.Sample) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO face_samples (person_id, content, width, height, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sample.PersonID, sample.Content, sample.Width, sample.Height, sample.Type).Scan(&id)
	return id, err
}

// SaveFace stores a sample under the named person in one transaction,
// creating the person if needed. It returns the person id.
func (s *Store) SaveFace(ctx context.Context, name string, sample types.Sample) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	personID, err := getOrCreatePerson(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	sample.PersonID = personID
	if _, err := createSample(ctx, tx, sample); err != nil {
		return 0, err
	}
	return personID, tx.Commit(ctx)
}

// AllSamples streams every stored sample, oldest first, to fn. Iteration
// stops at the first error fn returns.
func (s *Store) AllSamples(ctx context.Context, fn func(types.Sample) error) error {
	rows, err := s.pool.Query(ctx, "SELECT id, person_id, content, width, height, type FROM face_samples ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sample types.Sample
		if err := rows.Scan(&sample.ID, &sample.PersonID, &sample.Content, &sample.Width, &sample.Height, &sample.Type); err != nil {
			return err
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountSamples returns the size of the training corpus.
func (s *Store) CountSamples(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_samples").Scan(&n)
	return n, err
}

// ListPeople returns every person with their sample count.
func (s *Store) ListPeople(ctx context.Context) ([]types.Person, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, COUNT(f.id), p.created_at
		FROM people p
		LEFT JOIN face_samples f ON f.person_id = p.id
		GROUP BY p.id
		ORDER BY p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []types.Person
	for rows.Next() {
		var p types.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Count, &p.CreatedAt); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// RenamePerson updates the name of a person.
func (s *Store) RenamePerson(ctx context.Context, id int, newName string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE people SET name = $1 WHERE id = $2", newName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %d not found", id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS face_samples CASCADE;
		DROP TABLE IF EXISTS people CASCADE;
	`)
	return err
}
