package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/vm-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveriesRepository persists the delivery journal: one row per relay attempt.
// The journal is an audit trail; the provider's read flag stays the source of truth.
type DeliveriesRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error
	ListRecent(ctx context.Context, limit int) ([]model.Delivery, error)
	ListByMessage(ctx context.Context, messageID string) ([]model.Delivery, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *DeliveriesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

// Insert writes a journal row. Rows are never updated: a message relayed twice has two rows.
func (r *DeliveriesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error {
	if !d.Status.Valid() {
		return fmt.Errorf("invalid delivery status %q", d.Status)
	}
	const q = `
		INSERT INTO deliveries
		    (id, run_id, message_id, extension_id, caller_name, caller_number, received_at, status, error, created_at)
		VALUES
		    (:id, :run_id, :message_id, :extension_id, :caller_name, :caller_number, :received_at, :status, :error, :created_at)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, d)
		return err
	})
}

const selectDeliveries = `
	SELECT id, run_id, message_id, extension_id, caller_name, caller_number, received_at, status, error, created_at
	FROM deliveries
`

// ListRecent returns the newest rows first.
func (r *DeliveriesRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]model.Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	var rows []model.Delivery
	q := selectDeliveries + ` ORDER BY id DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByMessage returns every attempt recorded for one provider message, oldest first.
func (r *DeliveriesRepositoryImpl) ListByMessage(ctx context.Context, messageID string) ([]model.Delivery, error) {
	var rows []model.Delivery
	q := selectDeliveries + ` WHERE message_id = ? ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), messageID); err != nil {
		return nil, err
	}
	return rows, nil
}
