package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// DeliveryRepo is the audit trail of webhook delivery attempts. Rows are inserted PENDING
// and finalized exactly once.
type DeliveryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.DeliveryRepository = (*DeliveryRepo)(nil)

// NewDeliveryRepo creates a DeliveryRepo.
func NewDeliveryRepo(db *sql.DB, tp TimeProvider) *DeliveryRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &DeliveryRepo{DB: db, timeProvider: tp}
}

const deliveryColumns = `
  id,
  webhook_id,
  trigger_id,
  event_type,
  payload,
  status,
  http_status_code,
  response_excerpt,
  error,
  retry_count,
  next_attempt_at,
  created_at,
  completed_at
`

func scanDelivery(row rowScanner) (*model.WebhookDelivery, error) {
	var (
		d         model.WebhookDelivery
		payload   string
		code      sql.NullInt64
		excerpt   sql.NullString
		errText   sql.NullString
		nextAt    sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.WebhookID, &d.TriggerID, &d.EventType, &payload, &d.Status,
		&code, &excerpt, &errText, &d.RetryCount, &nextAt, &d.CreatedAt, &completed); err != nil {
		return nil, err
	}
	d.Payload = []byte(payload)
	if code.Valid {
		c := int(code.Int64)
		d.HTTPStatusCode = &c
	}
	d.ResponseExcerpt = cloneNullableString(excerpt)
	d.Error = cloneNullableString(errText)
	d.NextAttemptAt = cloneNullableTime(nextAt)
	d.CompletedAt = cloneNullableTime(completed)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func scanDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	defer rows.Close()
	var out []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// CreatePending records a scheduled attempt. Recording the same (trigger, retry_count)
// again returns the existing row unchanged.
func (r *DeliveryRepo) CreatePending(ctx context.Context, p core.NewDeliveryParams) (*model.WebhookDelivery, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	var next sql.NullTime
	if p.NextAttemptAt != nil {
		next = sql.NullTime{Time: p.NextAttemptAt.UTC(), Valid: true}
	}
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, webhook_id, trigger_id, event_type, payload, status, retry_count,
			next_attempt_at, created_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)
		ON CONFLICT (trigger_id, retry_count) DO UPDATE SET trigger_id = EXCLUDED.trigger_id
		RETURNING `+deliveryColumns,
		id, p.WebhookID, p.TriggerID, string(p.Event), string(p.Payload), p.RetryCount,
		next, r.timeProvider.Now(),
	)
	d, err := scanDelivery(row)
	if err != nil {
		return nil, fmt.Errorf("insert delivery: %w", err)
	}
	return d, nil
}

// Finalize records the outcome of a PENDING attempt. A row that is already final yields
// ErrDeliveryFinalized.
func (r *DeliveryRepo) Finalize(ctx context.Context, id string, res model.DeliveryResult) (*model.WebhookDelivery, error) {
	if res.Status != model.DeliverySuccess && res.Status != model.DeliveryFailed {
		return nil, fmt.Errorf("invalid final delivery status %q", res.Status)
	}
	var code sql.NullInt64
	if res.HTTPStatusCode != nil {
		code = sql.NullInt64{Int64: int64(*res.HTTPStatusCode), Valid: true}
	}
	var next sql.NullTime
	if res.NextAttemptAt != nil {
		next = sql.NullTime{Time: res.NextAttemptAt.UTC(), Valid: true}
	}
	row := r.DB.QueryRowContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $2,
		    http_status_code = $3,
		    response_excerpt = $4,
		    error = $5,
		    next_attempt_at = $6,
		    completed_at = $7
		WHERE id = $1 AND status = 'pending'
		RETURNING `+deliveryColumns,
		id, string(res.Status), code, nullString(res.ResponseExcerpt), nullString(res.Error),
		next, r.timeProvider.Now(),
	)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrDeliveryFinalized
	}
	if err != nil {
		return nil, fmt.Errorf("finalize delivery: %w", err)
	}
	return d, nil
}

// GetByID returns the delivery or ErrDeliveryNotFound.
func (r *DeliveryRepo) GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrDeliveryNotFound
	}
	d, err := scanDelivery(r.DB.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// ListByWebhook returns a registration's attempts, newest first.
func (r *DeliveryRepo) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*model.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC, retry_count DESC
		LIMIT $2`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

// ListByTrigger returns every attempt made for one trigger, oldest first.
func (r *DeliveryRepo) ListByTrigger(ctx context.Context, triggerID string) ([]*model.WebhookDelivery, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE trigger_id = $1
		ORDER BY retry_count`, triggerID)
	if err != nil {
		return nil, fmt.Errorf("list trigger deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

// DeleteBefore prunes finalized attempts completed before cutoff.
func (r *DeliveryRepo) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return deleteBatch(ctx, r.DB, advisoryLockDeleteDeliv, `
		DELETE FROM webhook_deliveries
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status <> 'pending' AND completed_at < $1
			ORDER BY completed_at
			LIMIT $2
		)`, cutoff.UTC(), limit)
}
