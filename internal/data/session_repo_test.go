package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/testutil"
)

func TestSessionRepo_EnsureCreatesThenReturnsExisting(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		sess, created, err := repo.Ensure(ctx, "+541155550001", "Ana")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, model.RootState, sess.CurrentState)
		assert.True(t, sess.FirstContact)
		assert.Equal(t, model.DefaultHistory(), sess.NavHistory)

		again, created, err := repo.Ensure(ctx, "+541155550001", "Ana")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, sess.PhoneNumber, again.PhoneNumber)
	})
}

func TestSessionRepo_UpdateNavigationMovesSession(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		_, _, err := repo.Ensure(ctx, "+541155550001", "Ana")
		require.NoError(t, err)

		history := append(model.DefaultHistory(), "1")
		require.NoError(t, repo.UpdateNavigation(ctx, "+541155550001", "1", history, "1"))

		sess, err := repo.GetByPhone(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Equal(t, "1", sess.CurrentState)
		assert.Equal(t, history, sess.NavHistory)
		assert.False(t, sess.FirstContact)
		require.NotNil(t, sess.LastMessage)
		assert.Equal(t, "1", *sess.LastMessage)
	})
}

func TestSessionRepo_FailedCounterRoundTrip(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		_, _, err := repo.Ensure(ctx, "+541155550001", "")
		require.NoError(t, err)

		n, err := repo.IncrementFailed(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = repo.IncrementFailed(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, repo.ResetFailed(ctx, "+541155550001"))
		sess, err := repo.GetByPhone(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Zero(t, sess.FailedCount)

		_, err = repo.IncrementFailed(ctx, "+549999999999")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSessionRepo_ResetRecordsReason(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()

		_, _, err := repo.Ensure(ctx, "+541155550001", "Ana")
		require.NoError(t, err)
		require.NoError(t, repo.UpdateNavigation(ctx, "+541155550001", "2", []string{model.RootState, "2"}, "2"))

		require.NoError(t, repo.Reset(ctx, "+541155550001", "expired"))

		sess, err := repo.GetByPhone(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Equal(t, model.RootState, sess.CurrentState)
		assert.Equal(t, model.DefaultHistory(), sess.NavHistory)
		assert.Zero(t, sess.FailedCount)
		assert.Equal(t, "expired", sess.Extra.LastCloseReason)
		assert.NotZero(t, sess.Extra.LastClosedAt)
	})
}

func TestSessionRepo_CloseExpiredSweepsIdleSessions(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		now := time.Now().UTC()
		past := now.Add(-2 * time.Hour)
		repo := NewSessionRepoWithTimeProvider(db, FixedTimeProvider{Fixed: past})
		ctx := context.Background()

		// Three sessions idle for two hours, one of them already at the root.
		for _, phone := range []string{"+541155550001", "+541155550002", "+541155550003"} {
			_, _, err := repo.Ensure(ctx, phone, "")
			require.NoError(t, err)
		}
		require.NoError(t, repo.UpdateNavigation(ctx, "+541155550001", "1", []string{model.RootState, "1"}, "1"))
		require.NoError(t, repo.UpdateNavigation(ctx, "+541155550002", "2", []string{model.RootState, "2"}, "2"))

		// A fourth session is mid-navigation but fresh.
		fresh := NewSessionRepoWithTimeProvider(db, FixedTimeProvider{Fixed: now})
		_, _, err := fresh.Ensure(ctx, "+541155550004", "")
		require.NoError(t, err)
		require.NoError(t, fresh.UpdateNavigation(ctx, "+541155550004", "1", []string{model.RootState, "1"}, "1"))

		closed, err := fresh.CloseExpired(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, closed)

		swept, err := fresh.GetByPhone(ctx, "+541155550001")
		require.NoError(t, err)
		assert.Equal(t, model.RootState, swept.CurrentState)
		assert.Equal(t, "expired_sweep", swept.Extra.LastCloseReason)

		kept, err := fresh.GetByPhone(ctx, "+541155550004")
		require.NoError(t, err)
		assert.Equal(t, "1", kept.CurrentState)

		// Idempotent: everything eligible is already at the root.
		closed, err = fresh.CloseExpired(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, closed)
	})
}
