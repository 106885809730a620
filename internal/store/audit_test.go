package store

import (
	"context"
	"os"
	"testing"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to TEST_DATABASE_URL, skipping when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestAuditStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore(testPool(t))
	require.NoError(t, s.EnsureSchema(ctx))

	subject := uuid.New().String()
	for _, verdict := range []string{"accept", "challenge"} {
		e := &domain.AuditEvent{
			Kind:      domain.AuditKindFactReview,
			SubjectID: subject,
			Verdict:   verdict,
			Penalty:   0.25,
			Reasoning: "test",
			Payload:   map[string]any{"concerns": []string{"small sample"}},
		}
		require.NoError(t, s.Create(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	events, err := s.ListBySubject(ctx, subject, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.AuditKindFactReview, events[0].Kind)

	got, err := s.GetByID(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, subject, got.SubjectID)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	dup := events[0]
	assert.ErrorIs(t, s.Create(ctx, &dup), ErrConflict)
}
