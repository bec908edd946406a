package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrScopeClosed is returned when a finished scope is committed again.
var ErrScopeClosed = errors.New("transaction scope already closed")

// Scope is a transaction or a savepoint nested inside one.
type Scope interface {
	// Exec is the handle repositories run statements on.
	Exec() sqlx.ExtContext
	// Savepoint opens a nested scope that can be rolled back on its own.
	Savepoint(ctx context.Context) (Scope, error)
	// Commit commits the transaction, or releases the savepoint.
	Commit() error
	// Rollback aborts the transaction, or rolls back to the savepoint. It is a no-op once the scope is closed.
	Rollback() error
}

// TxManager opens sync transactions.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager constructs a TxManager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin starts an outer transaction scope.
func (m *TxManager) Begin(ctx context.Context) (Scope, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &TxScope{tx: tx, ctx: ctx, seq: new(int)}, nil
}

// Reader returns the non-transactional handle used for read-only pre-flight checks.
func (m *TxManager) Reader() sqlx.ExtContext {
	return m.db
}

// Ping checks database connectivity.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// RunInTx runs fn in a new transaction. It commits when fn returns nil and
// rolls back on error or panic; a panic is re-raised after the rollback.
func (m *TxManager) RunInTx(ctx context.Context, fn func(Scope) error) (err error) {
	scope, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	return run(scope, fn)
}

// RunNested runs fn inside a savepoint of parent with the same commit and rollback rules as RunInTx.
func RunNested(ctx context.Context, parent Scope, fn func(Scope) error) error {
	scope, err := parent.Savepoint(ctx)
	if err != nil {
		return err
	}
	return run(scope, fn)
}

func run(scope Scope, fn func(Scope) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = scope.Rollback()
			panic(r)
		}
	}()

	if err := fn(scope); err != nil {
		if rbErr := scope.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	return scope.Commit()
}

// TxScope implements Scope over a *sqlx.Tx. Savepoints share the parent's transaction.
type TxScope struct {
	tx        *sqlx.Tx
	ctx       context.Context
	savepoint string
	seq       *int
	closed    bool
}

// Exec implements Scope.
func (s *TxScope) Exec() sqlx.ExtContext { return s.tx }

// Savepoint implements Scope.
func (s *TxScope) Savepoint(ctx context.Context) (Scope, error) {
	if s.closed {
		return nil, ErrScopeClosed
	}
	*s.seq++
	name := fmt.Sprintf("sp_%d", *s.seq)
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("create savepoint %s: %w", name, err)
	}
	return &TxScope{tx: s.tx, ctx: ctx, savepoint: name, seq: s.seq}, nil
}

// Commit implements Scope.
func (s *TxScope) Commit() error {
	if s.closed {
		return ErrScopeClosed
	}
	s.closed = true
	if s.savepoint != "" {
		if _, err := s.tx.ExecContext(s.ctx, "RELEASE SAVEPOINT "+s.savepoint); err != nil {
			return fmt.Errorf("release savepoint %s: %w", s.savepoint, err)
		}
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback implements Scope.
func (s *TxScope) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.savepoint != "" {
		if _, err := s.tx.ExecContext(context.WithoutCancel(s.ctx), "ROLLBACK TO SAVEPOINT "+s.savepoint); err != nil {
			return fmt.Errorf("rollback to savepoint %s: %w", s.savepoint, err)
		}
		return nil
	}
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
