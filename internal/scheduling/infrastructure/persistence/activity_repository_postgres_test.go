package persistence_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database/postgres"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/migrations"
)

func setupPostgres(t *testing.T) database.Connection {
	t.Helper()

	// Use test database URL from environment
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	conn, err := postgres.NewConnection(ctx, database.Config{URL: dbURL})
	if err != nil {
		t.Skipf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn)
	require.NoError(t, err)

	// Clean up tables before test
	for _, table := range []string{"activity_participants", "activities", "parties", "activity_statuses", "outbox"} {
		_, _ = conn.Exec(ctx, "DELETE FROM "+table)
	}
	return conn
}

func TestActivityRepository_Postgres(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()
	repo := persistence.NewActivityRepository(conn, nil, nil)
	listener := newRecordingListener()
	repo.Subscribe(domain.ActivityKindAppointment, listener)

	first := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	first.Participants = []domain.ParticipantLink{
		{Role: "customer", Party: domain.PartyRef{Kind: "customer", ID: 7}},
	}
	second := appointment(schedS, at("2024-01-10", 13, 0), time.Time{})
	second.MultiDay = true
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	found, err := repo.FindInRange(ctx, schedS, at("2024-01-10", 0, 0), at("2024-01-10", 23, 59))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first.Participants, found[0].Participants)
	assert.True(t, found[1].MultiDay)
	assert.True(t, found[1].End.IsZero())

	require.NoError(t, repo.SaveParty(ctx, domain.PartyRef{Kind: "customer", ID: 7}, "Ada"))
	name, err := repo.ParticipantName(ctx, domain.PartyRef{Kind: "customer", ID: 7})
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	require.NoError(t, repo.Delete(ctx, first.Ref))
	assert.Equal(t, []string{"PreSave", "Saved", "PreSave", "Saved", "PreRemove", "Removed"}, listener.calls)
}
