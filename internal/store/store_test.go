package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/gaze/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("gaze_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close()

	// --- Test Scenarios ---

	alice, err := s.GetOrCreatePerson(ctx, "alice")
	require.NoError(t, err)
	assert.Positive(t, alice)

	again, err := s.GetOrCreatePerson(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, again, "names are unique")

	p, err := s.GetPerson(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Name)

	missing, err := s.GetPerson(ctx, alice+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.CreateSample(ctx, types.Sample{PersonID: alice, Content: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Width: 100, Height: 100})
	require.NoError(t, err)

	bob, err := s.SaveFace(ctx, "bob", types.Sample{Content: []byte{1, 2, 3}, Width: 10, Height: 10})
	require.NoError(t, err)
	assert.NotEqual(t, alice, bob)

	// Saving under a known name reuses the person, whatever PersonID says.
	reused, err := s.SaveFace(ctx, "alice", types.Sample{PersonID: alice + 1000, Content: []byte{4, 5}, Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, alice, reused)

	n, err := s.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var seen []types.Sample
	err = s.AllSamples(ctx, func(sample types.Sample) error {
		seen = append(seen, sample)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, alice, seen[0].PersonID)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, seen[0].Content)
	assert.Equal(t, bob, seen[1].PersonID)
	assert.Equal(t, 10, seen[1].Width)
	assert.Equal(t, alice, seen[2].PersonID)

	stop := fmt.Errorf("stop")
	calls := 0
	err = s.AllSamples(ctx, func(types.Sample) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	require.NoError(t, s.RenamePerson(ctx, bob, "robert"))
	assert.Error(t, s.RenamePerson(ctx, bob+1000, "nobody"))

	people, err := s.ListPeople(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "alice", people[0].Name)
	assert.Equal(t, 2, people[0].Count)
	assert.Equal(t, "robert", people[1].Name)

	require.NoError(t, s.Reset(ctx))
	_, err = s.CountSamples(ctx)
	assert.Error(t, err, "tables are gone after reset")
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
