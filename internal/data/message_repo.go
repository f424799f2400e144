package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/devLink-Developer/chatbot-camping/internal/data/pgxutil"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

// MessageRepo provides database operations for the durable message store.
type MessageRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewMessageRepo creates a MessageRepo using the wall clock.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewMessageRepoWithTimeProvider creates a MessageRepo with a custom
// TimeProvider (useful for testing).
func NewMessageRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *MessageRepo {
	return &MessageRepo{DB: db, timeProvider: tp}
}

const messageColumns = `
  id, phone_number, display_name, direction, msg_type, body, wa_message_id,
  origin_ts, queue_status, delivery_status, delivery_ts, process_after,
  claimed_at, processed_at, attempts, last_error, metadata, created_at`

// Create inserts a message row. For inbound rows carrying a provider message
// id the insert is idempotent: a redelivered webhook returns the existing row
// instead of creating a duplicate.
func (r *MessageRepo) Create(ctx context.Context, req *model.CreateMessageRequest) (*model.Message, error) {
	if req == nil {
		return nil, errors.New("create message request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	originTS := req.OriginTS
	if originTS.IsZero() {
		originTS = r.timeProvider.Now()
	}

	query := `
		INSERT INTO messages
		  (phone_number, display_name, direction, msg_type, body, wa_message_id,
		   origin_ts, queue_status, process_after, metadata)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NULLIF($6, ''),
		        $7, $8, $9, $10)
		ON CONFLICT (wa_message_id) WHERE direction = 'in' AND wa_message_id IS NOT NULL
		DO NOTHING
		RETURNING ` + messageColumns

	var msg *model.Message
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query,
			req.PhoneNumber,
			req.DisplayName,
			req.Direction,
			req.MsgType,
			req.Body,
			req.WAMessageID,
			originTS.UTC(),
			req.QueueStatus,
			nullableTime(req.ProcessAfter),
			meta,
		)
		if qerr != nil {
			return fmt.Errorf("insert message: %w", qerr)
		}
		defer rows.Close()
		m, cerr := collectMessage(rows)
		if cerr != nil {
			return cerr
		}
		msg = m
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict on the partial unique index: fetch the already-stored row.
		if req.Direction == model.DirectionIn && req.WAMessageID != "" {
			return r.GetInboundByWAMessageID(ctx, req.WAMessageID)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetByID retrieves a message by its id.
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return r.getOne(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
}

// GetInboundByWAMessageID retrieves the inbound row stored for a provider
// message id.
func (r *MessageRepo) GetInboundByWAMessageID(ctx context.Context, waID string) (*model.Message, error) {
	return r.getOne(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE direction = 'in' AND wa_message_id = $1`,
		waID)
}

func (r *MessageRepo) getOne(ctx context.Context, query string, args ...any) (*model.Message, error) {
	var msg *model.Message
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		m, cerr := collectMessage(rows)
		if cerr != nil {
			return cerr
		}
		msg = m
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// MarkProcessed transitions a claimed inbound row to its terminal state.
func (r *MessageRepo) MarkProcessed(ctx context.Context, id string) (bool, error) {
	return r.finish(ctx, finishParams{
		ID:     id,
		Status: model.QueueStatusProcessed,
	})
}

// MarkSent transitions a claimed outbound row to sent, recording the
// provider-assigned message id and the delivery ack.
func (r *MessageRepo) MarkSent(ctx context.Context, id, waMessageID string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE messages
		SET queue_status = 'sent',
		    delivery_status = 'sent',
		    wa_message_id = COALESCE(NULLIF($2, ''), wa_message_id),
		    processed_at = $3,
		    last_error = NULL
		WHERE id = $1 AND queue_status = 'processing'
	`, id, waMessageID, now)
	if err != nil {
		return false, fmt.Errorf("mark message sent: %w", err)
	}
	return oneRowAffected(res)
}

// MarkFailed transitions a claimed row to failed with the given error text.
// Deliberate drops (expiry, supersession) use the error tags in the model
// package so they stay distinguishable from provider failures.
func (r *MessageRepo) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	return r.finish(ctx, finishParams{
		ID:     id,
		Status: model.QueueStatusFailed,
		Error:  errMsg,
	})
}

type finishParams struct {
	ID     string
	Status model.QueueStatus
	Error  string
}

func (r *MessageRepo) finish(ctx context.Context, p finishParams) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE messages
		SET queue_status = $2,
		    processed_at = $3,
		    last_error = NULLIF($4, '')
		WHERE id = $1 AND queue_status = 'processing'
	`, p.ID, p.Status, now, p.Error)
	if err != nil {
		return false, fmt.Errorf("finish message: %w", err)
	}
	return oneRowAffected(res)
}

// UpdateMetadata rewrites the structured metadata of a row.
func (r *MessageRepo) UpdateMetadata(ctx context.Context, id string, meta model.MessageMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err = r.DB.ExecContext(ctx,
		`UPDATE messages SET metadata = $2 WHERE id = $1`, id, raw); err != nil {
		return fmt.Errorf("update message metadata: %w", err)
	}
	return nil
}

// ApplyDeliveryStatus records a provider delivery ack (sent/delivered/read)
// on the outbound row matching the provider message id. Unknown ids are not
// an error; status webhooks routinely outlive local retention.
func (r *MessageRepo) ApplyDeliveryStatus(ctx context.Context, waMessageID, status string, ts time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE messages
		SET delivery_status = $2,
		    delivery_ts = $3
		WHERE direction = 'out' AND wa_message_id = $1
	`, waMessageID, status, ts.UTC())
	if err != nil {
		return false, fmt.Errorf("apply delivery status: %w", err)
	}
	return oneRowAffected(res)
}

// Requeue returns a failed row to its eligible status for an operator-driven
// re-drive. Inbound rows go back to pending, outbound rows to queued.
func (r *MessageRepo) Requeue(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE messages
		SET queue_status = CASE WHEN direction = 'in' THEN 'pending' ELSE 'queued' END,
		    claimed_at = NULL,
		    processed_at = NULL,
		    last_error = NULL,
		    process_after = NULL
		WHERE id = $1 AND queue_status = 'failed'
	`, id)
	if err != nil {
		return false, fmt.Errorf("requeue message: %w", err)
	}
	return oneRowAffected(res)
}

// HasNewerInbound reports whether an inbound message from the correspondent
// arrived strictly after the given origin timestamp. The outbound dispatcher
// uses this for the supersession guard.
func (r *MessageRepo) HasNewerInbound(ctx context.Context, phoneNumber string, after time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM messages
			WHERE direction = 'in' AND phone_number = $1 AND origin_ts > $2
		)
	`, phoneNumber, after.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check newer inbound: %w", err)
	}
	return exists, nil
}

// Stats returns per-status message counts for one direction.
func (r *MessageRepo) Stats(ctx context.Context, direction model.Direction) (*model.QueueStats, error) {
	var s model.QueueStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE queue_status = 'pending')    AS pending,
	    count(*) FILTER (WHERE queue_status = 'queued')     AS queued,
	    count(*) FILTER (WHERE queue_status = 'processing') AS processing,
	    count(*) FILTER (WHERE queue_status = 'processed')  AS processed,
	    count(*) FILTER (WHERE queue_status = 'sent')       AS sent,
	    count(*) FILTER (WHERE queue_status = 'failed')     AS failed
	  FROM messages
	  WHERE direction = $1
	`, direction).Scan(&s.Pending, &s.Queued, &s.Processing, &s.Processed, &s.Sent, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("message stats: %w", err)
	}
	return &s, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// messageRow matches the messages table schema for pgx scanning.
type messageRow struct {
	ID             string         `db:"id"`
	PhoneNumber    string         `db:"phone_number"`
	DisplayName    sql.NullString `db:"display_name"`
	Direction      string         `db:"direction"`
	MsgType        string         `db:"msg_type"`
	Body           sql.NullString `db:"body"`
	WAMessageID    sql.NullString `db:"wa_message_id"`
	OriginTS       time.Time      `db:"origin_ts"`
	QueueStatus    string         `db:"queue_status"`
	DeliveryStatus sql.NullString `db:"delivery_status"`
	DeliveryTS     sql.NullTime   `db:"delivery_ts"`
	ProcessAfter   sql.NullTime   `db:"process_after"`
	ClaimedAt      sql.NullTime   `db:"claimed_at"`
	ProcessedAt    sql.NullTime   `db:"processed_at"`
	Attempts       int            `db:"attempts"`
	LastError      sql.NullString `db:"last_error"`
	Metadata       []byte         `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row *messageRow) toModel() (*model.Message, error) {
	msg := &model.Message{
		ID:          row.ID,
		PhoneNumber: row.PhoneNumber,
		Direction:   model.Direction(row.Direction),
		MsgType:     row.MsgType,
		OriginTS:    row.OriginTS.UTC(),
		QueueStatus: model.QueueStatus(row.QueueStatus),
		Attempts:    row.Attempts,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	msg.DisplayName = nullString(row.DisplayName)
	msg.Body = nullString(row.Body)
	msg.WAMessageID = nullString(row.WAMessageID)
	msg.DeliveryStatus = nullString(row.DeliveryStatus)
	msg.DeliveryTS = nullTime(row.DeliveryTS)
	msg.ProcessAfter = nullTime(row.ProcessAfter)
	msg.ClaimedAt = nullTime(row.ClaimedAt)
	msg.ProcessedAt = nullTime(row.ProcessedAt)
	msg.LastError = nullString(row.LastError)
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return msg, nil
}

func rowToMessage(row pgx.CollectableRow) (*model.Message, error) {
	dbRow, err := pgx.RowToStructByName[messageRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return dbRow.toModel()
}

// collectMessage collects exactly one message from pgx rows.
func collectMessage(rows pgx.Rows) (*model.Message, error) {
	msgs, err := pgx.CollectRows(rows, rowToMessage)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return msgs[0], nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
