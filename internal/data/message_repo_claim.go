package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devLink-Developer/chatbot-camping/internal/data/pgxutil"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// claimBatchSQL atomically reserves the oldest eligible rows for one
// direction. SKIP LOCKED lets concurrent workers claim disjoint batches
// without blocking on each other; the process_after gate keeps delayed
// outbound rows invisible until their due time.
const claimBatchSQL = `
	WITH due AS (
		SELECT id
		FROM messages
		WHERE direction = $1
		  AND queue_status = $2
		  AND (process_after IS NULL OR process_after <= $3)
		ORDER BY COALESCE(process_after, origin_ts) ASC, id ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	)
	UPDATE messages m
	SET queue_status = 'processing',
	    claimed_at = $3,
	    attempts = m.attempts + 1
	FROM due
	WHERE m.id = due.id
	RETURNING
	  m.id, m.phone_number, m.display_name, m.direction, m.msg_type, m.body,
	  m.wa_message_id, m.origin_ts, m.queue_status, m.delivery_status,
	  m.delivery_ts, m.process_after, m.claimed_at, m.processed_at,
	  m.attempts, m.last_error, m.metadata, m.created_at`

// ClaimInbound reserves up to limit pending inbound messages.
func (r *MessageRepo) ClaimInbound(ctx context.Context, limit int) ([]*model.Message, error) {
	return r.claimBatch(ctx, model.DirectionIn, model.QueueStatusPending, limit)
}

// ClaimOutbound reserves up to limit due outbound messages.
func (r *MessageRepo) ClaimOutbound(ctx context.Context, limit int) ([]*model.Message, error) {
	return r.claimBatch(ctx, model.DirectionOut, model.QueueStatusQueued, limit)
}

func (r *MessageRepo) claimBatch(ctx context.Context, dir model.Direction, status model.QueueStatus, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := r.timeProvider.Now().UTC()

	var claimed []*model.Message
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, claimBatchSQL, dir, status, now, limit)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		msgs, cerr := pgx.CollectRows(rows, rowToMessage)
		if cerr != nil {
			return cerr
		}
		claimed = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s batch: %w", dir, err)
	}

	// UPDATE ... FROM does not preserve the CTE ordering, so restore the
	// eligibility order before handing the batch to the worker.
	sort.Slice(claimed, func(i, j int) bool {
		ti, tj := eligibleAt(claimed[i]), eligibleAt(claimed[j])
		if ti.Equal(tj) {
			return claimed[i].ID < claimed[j].ID
		}
		return ti.Before(tj)
	})
	return claimed, nil
}

func eligibleAt(m *model.Message) time.Time {
	if m.ProcessAfter != nil {
		return *m.ProcessAfter
	}
	return m.OriginTS
}
