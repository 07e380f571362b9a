package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Querier
	IsOpen() bool
	IsOwner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type txState struct {
	mu     sync.Mutex
	closed bool
}

// Transaction wraps sqlx.Tx. The handle returned by the GetTx call that began the transaction
// owns it; handles returned to nested GetTx calls join it and leave Commit and Rollback to the owner.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	owner  bool
	state  *txState
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		owner:  true,
		state:  &txState{},
	}
}

func (t *Transaction) join() *Transaction {
	return &Transaction{
		Tx:     t.Tx,
		logger: t.logger,
		owner:  false,
		state:  t.state,
	}
}

func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, ctxTx.join(), nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func (t *Transaction) IsOpen() bool {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	return !t.state.closed
}

func (t *Transaction) IsOwner() bool {
	return t.owner
}

// Rollback is safe to defer: it does nothing after a successful Commit or on a joined handle.
func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.owner {
		return nil
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	if t.state.closed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	t.state.closed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.owner {
		return nil
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	if t.state.closed {
		return nil
	}

	// a failed commit still ends the transaction
	t.state.closed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and rolling back otherwise.
// When ctx already carries a transaction fn joins it.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	txCtx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if err := fn(txCtx); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}
