package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/data/cryptoutil"
	"github.com/target/mmk-media-jobs/internal/data/pgxutil"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// WebhookRepo stores webhook registrations with sealed signing secrets and maintains the
// (owner, event) index used to fan events out.
type WebhookRepo struct {
	DB           *sql.DB
	Sealer       cryptoutil.Sealer
	timeProvider TimeProvider
}

var _ core.WebhookRepository = (*WebhookRepo)(nil)

// NewWebhookRepo creates a WebhookRepo. A nil sealer stores secrets with the noop format.
func NewWebhookRepo(db *sql.DB, sealer cryptoutil.Sealer, tp TimeProvider) *WebhookRepo {
	if sealer == nil {
		sealer = cryptoutil.NoopSealer{}
	}
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &WebhookRepo{DB: db, Sealer: sealer, timeProvider: tp}
}

const webhookColumns = `id::text, owner_id, target_url, event_types, signing_secret, is_active,
	scope_asset_id, scope_match, created_at, updated_at`

const webhookColumnsQualified = `w.id::text, w.owner_id, w.target_url, w.event_types, w.signing_secret, w.is_active,
	w.scope_asset_id, w.scope_match, w.created_at, w.updated_at`

func (r *WebhookRepo) scanWebhook(row pgx.Row) (*model.WebhookRegistration, error) {
	var (
		w       model.WebhookRegistration
		events  []string
		sealed  string
		assetID *string
		match   *string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.TargetURL, &events, &sealed, &w.IsActive,
		&assetID, &match, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	secret, err := r.Sealer.Open(sealed, w.ID)
	if err != nil {
		return nil, fmt.Errorf("open signing secret for webhook %s: %w", w.ID, err)
	}
	w.SigningSecret = string(secret)
	w.EventTypes = make([]model.WebhookEvent, len(events))
	for i, e := range events {
		w.EventTypes[i] = model.WebhookEvent(e)
	}
	w.Scope = model.ScopeFilter{AssetID: assetID, Match: match}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

func eventStrings(events []model.WebhookEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

// Create inserts the registration and its index rows in one transaction. ID and
// timestamps are assigned here; SigningSecret must already be generated.
func (r *WebhookRepo) Create(ctx context.Context, w *model.WebhookRegistration) (*model.WebhookRegistration, error) {
	if w == nil {
		return nil, errors.New("webhook is required")
	}
	if w.SigningSecret == "" {
		return nil, errors.New("signing secret is required")
	}
	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}
	sealed, err := r.Sealer.Seal([]byte(w.SigningSecret), id)
	if err != nil {
		return nil, fmt.Errorf("seal signing secret: %w", err)
	}
	now := r.timeProvider.Now()

	var created *model.WebhookRegistration
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			row := tx.QueryRow(ctx, `
				INSERT INTO webhooks (
					id, owner_id, target_url, event_types, signing_secret, is_active,
					scope_asset_id, scope_match, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $8)
				RETURNING `+webhookColumns,
				id, w.OwnerID, w.TargetURL, eventStrings(w.EventTypes), sealed,
				w.Scope.AssetID, w.Scope.Match, now,
			)
			var scanErr error
			created, scanErr = r.scanWebhook(row)
			if scanErr != nil {
				return fmt.Errorf("insert webhook: %w", scanErr)
			}

			batch := &pgx.Batch{}
			for _, e := range w.EventTypes {
				batch.Queue(`
					INSERT INTO webhook_event_index (owner_id, event_type, webhook_id)
					VALUES ($1, $2, $3)
					ON CONFLICT DO NOTHING`, w.OwnerID, string(e), id)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("index webhook events: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID returns the registration or ErrWebhookNotFound.
func (r *WebhookRepo) GetByID(ctx context.Context, id string) (*model.WebhookRegistration, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrWebhookNotFound
	}
	var w *model.WebhookRegistration
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		w, scanErr = r.scanWebhook(conn.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// ListByOwner returns the owner's registrations, newest first, active or not.
func (r *WebhookRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error) {
	return r.query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhooks
		WHERE owner_id = $1
		ORDER BY created_at DESC, id`, ownerID)
}

// FindActive returns the owner's active registrations subscribed to event.
func (r *WebhookRepo) FindActive(ctx context.Context, ownerID string, event model.WebhookEvent) ([]*model.WebhookRegistration, error) {
	return r.query(ctx, `
		SELECT `+webhookColumnsQualified+`
		FROM webhook_event_index i
		JOIN webhooks w ON w.id = i.webhook_id
		WHERE i.owner_id = $1 AND i.event_type = $2 AND w.is_active
		ORDER BY w.created_at, w.id`, ownerID, string(event))
}

func (r *WebhookRepo) query(ctx context.Context, q string, args ...any) ([]*model.WebhookRegistration, error) {
	scan := func(row pgx.CollectableRow) (*model.WebhookRegistration, error) { return r.scanWebhook(row) }
	out, err := pgxutil.QueryAll(ctx, r.DB, scan, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	return out, nil
}

// Deactivate turns off the owner's registration and drops its index rows. It returns
// false when no active registration matched.
func (r *WebhookRepo) Deactivate(ctx context.Context, ownerID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var changed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE webhooks SET is_active = FALSE, updated_at = $3
				WHERE id = $1 AND owner_id = $2 AND is_active`, id, ownerID, r.timeProvider.Now())
			if err != nil {
				return fmt.Errorf("deactivate webhook: %w", err)
			}
			changed = tag.RowsAffected() > 0
			if !changed {
				return nil
			}
			if _, err := tx.Exec(ctx, `DELETE FROM webhook_event_index WHERE webhook_id = $1`, id); err != nil {
				return fmt.Errorf("unindex webhook: %w", err)
			}
			return nil
		},
	})
	return changed, err
}
