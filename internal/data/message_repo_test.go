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

func seedInbound(t *testing.T, repo *MessageRepo, phone, body, waID string, originTS time.Time) *model.Message {
	t.Helper()
	msg, err := repo.Create(context.Background(), &model.CreateMessageRequest{
		PhoneNumber: phone,
		Direction:   model.DirectionIn,
		MsgType:     model.MessageTypeText,
		Body:        body,
		WAMessageID: waID,
		OriginTS:    originTS,
		QueueStatus: model.QueueStatusPending,
	})
	require.NoError(t, err)
	return msg
}

func seedOutbound(t *testing.T, repo *MessageRepo, phone, body string, processAfter *time.Time) *model.Message {
	t.Helper()
	msg, err := repo.Create(context.Background(), &model.CreateMessageRequest{
		PhoneNumber:  phone,
		Direction:    model.DirectionOut,
		MsgType:      model.MessageTypeText,
		Body:         body,
		QueueStatus:  model.QueueStatusQueued,
		ProcessAfter: processAfter,
	})
	require.NoError(t, err)
	return msg
}

func TestMessageRepo_CreateInboundIsIdempotentOnWAID(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		ts := time.Now().UTC().Truncate(time.Millisecond)

		first := seedInbound(t, repo, "+541155550000", "hola", "wamid.dup", ts)
		second := seedInbound(t, repo, "+541155550000", "hola", "wamid.dup", ts)

		assert.Equal(t, first.ID, second.ID)

		var count int
		require.NoError(t, db.QueryRow(
			`SELECT count(*) FROM messages WHERE wa_message_id = 'wamid.dup'`).Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestMessageRepo_ClaimInboundOldestFirst(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		base := time.Now().UTC().Add(-time.Hour)

		seedInbound(t, repo, "+541155550001", "segundo", "wamid.2", base.Add(time.Minute))
		seedInbound(t, repo, "+541155550002", "primero", "wamid.1", base)
		seedInbound(t, repo, "+541155550003", "tercero", "wamid.3", base.Add(2*time.Minute))

		claimed, err := repo.ClaimInbound(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, "primero", *claimed[0].Body)
		assert.Equal(t, "segundo", *claimed[1].Body)
		for _, msg := range claimed {
			assert.Equal(t, model.QueueStatusProcessing, msg.QueueStatus)
			assert.Equal(t, 1, msg.Attempts)
			require.NotNil(t, msg.ClaimedAt)
		}

		// The remaining row is still pending for the next claim.
		rest, err := repo.ClaimInbound(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "tercero", *rest[0].Body)
	})
}

func TestMessageRepo_ConcurrentClaimsAreDisjoint(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		base := time.Now().UTC().Add(-time.Hour)

		const seeded = 10
		for i := 0; i < seeded; i++ {
			seedInbound(t, repo, "+54115555000"+string(rune('0'+i)), "msg",
				"wamid.concurrent."+string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
		}

		// Two workers claim at the same time; SKIP LOCKED must hand each a
		// disjoint batch.
		start := make(chan struct{})
		results := make(chan []*model.Message, 2)
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				<-start
				claimed, err := repo.ClaimInbound(context.Background(), seeded/2)
				results <- claimed
				errs <- err
			}()
		}
		close(start)

		seen := make(map[string]int)
		total := 0
		for i := 0; i < 2; i++ {
			require.NoError(t, <-errs)
			for _, msg := range <-results {
				seen[msg.ID]++
				total++
			}
		}

		assert.Equal(t, seeded, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "message %s claimed more than once", id)
		}
	})
}

func TestMessageRepo_ClaimRespectsProcessAfter(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		now := time.Now().UTC()
		repo := NewMessageRepoWithTimeProvider(db, FixedTimeProvider{Fixed: now})

		future := now.Add(time.Minute)
		due := now.Add(-time.Second)
		seedOutbound(t, repo, "+541155550001", "todavía no", &future)
		seedOutbound(t, repo, "+541155550002", "ya", &due)

		claimed, err := repo.ClaimOutbound(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "ya", *claimed[0].Body)

		// Advance the clock past the delay and the held row becomes eligible.
		repo = NewMessageRepoWithTimeProvider(db, FixedTimeProvider{Fixed: now.Add(2 * time.Minute)})
		claimed, err = repo.ClaimOutbound(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "todavía no", *claimed[0].Body)
	})
}

func TestMessageRepo_ClaimZeroLimitIsNoop(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		claimed, err := repo.ClaimInbound(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestMessageRepo_LifecycleTransitions(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		ctx := context.Background()

		msg := seedOutbound(t, repo, "+541155550001", "hola", nil)

		// Terminal transitions only apply to claimed rows.
		ok, err := repo.MarkSent(ctx, msg.ID, "wamid.out1")
		require.NoError(t, err)
		assert.False(t, ok)

		claimed, err := repo.ClaimOutbound(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		ok, err = repo.MarkSent(ctx, msg.ID, "wamid.out1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusSent, got.QueueStatus)
		require.NotNil(t, got.WAMessageID)
		assert.Equal(t, "wamid.out1", *got.WAMessageID)
		require.NotNil(t, got.ProcessedAt)
	})
}

func TestMessageRepo_RequeueOnlyFailedRows(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		ctx := context.Background()

		msg := seedOutbound(t, repo, "+541155550001", "hola", nil)
		_, err := repo.ClaimOutbound(ctx, 1)
		require.NoError(t, err)
		ok, err := repo.MarkFailed(ctx, msg.ID, "provider 500")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Requeue(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusQueued, got.QueueStatus)
		assert.Nil(t, got.LastError)
		assert.Nil(t, got.ClaimedAt)
		// Attempts stay as recorded across the re-drive.
		assert.Equal(t, 1, got.Attempts)

		// A second requeue finds nothing in failed state.
		ok, err = repo.Requeue(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMessageRepo_HasNewerInbound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		seedInbound(t, repo, "+541155550001", "hola", "wamid.1", base)

		newer, err := repo.HasNewerInbound(ctx, "+541155550001", base.Add(-time.Minute))
		require.NoError(t, err)
		assert.True(t, newer)

		newer, err = repo.HasNewerInbound(ctx, "+541155550001", base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, newer)

		newer, err = repo.HasNewerInbound(ctx, "+549999999999", base.Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, newer)
	})
}

func TestMessageRepo_StatsPerDirection(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewMessageRepo(db)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		seedInbound(t, repo, "+541155550001", "uno", "wamid.1", base)
		seedInbound(t, repo, "+541155550002", "dos", "wamid.2", base)
		seedOutbound(t, repo, "+541155550001", "respuesta", nil)

		in, err := repo.Stats(ctx, model.DirectionIn)
		require.NoError(t, err)
		assert.Equal(t, int64(2), in.Pending)
		assert.Equal(t, int64(0), in.Queued)

		out, err := repo.Stats(ctx, model.DirectionOut)
		require.NoError(t, err)
		assert.Equal(t, int64(1), out.Queued)
		assert.Equal(t, int64(0), out.Pending)
	})
}
