package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "taxfiling/pkg/domain-errors"
	txctx "taxfiling/pkg/platform/tx"
)

// StoreTx provides the transactional boundary around load → decide → persist
// → transition. Implementations wrap a database transaction or, in memory, a
// sharded lock; either way two concurrent operations on the same filing
// cannot interleave their read-modify-write.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// numShards spreads in-memory transactions across mutexes hashed by filing,
// so operations on different filings proceed independently.
const numShards = 64

// defaultTxTimeout bounds a transaction when the caller supplied no deadline.
const defaultTxTimeout = 10 * time.Second

type txShardKey struct{}

// WithTxShard tags the context with the identity the transaction serializes
// on. Callers set this to the draft/filing ID before RunInTx.
func WithTxShard(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, txShardKey{}, key)
}

// MemoryTx serializes transactions with sharded mutexes. Pairs with the
// in-memory stores.
type MemoryTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewMemoryTx constructs the in-memory transaction boundary.
func NewMemoryTx() *MemoryTx {
	return &MemoryTx{timeout: defaultTxTimeout}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func (t *MemoryTx) selectShard(ctx context.Context) int {
	if key, ok := ctx.Value(txShardKey{}).(string); ok && key != "" {
		return int(fnvHash(key) % numShards)
	}
	return 0
}

// fnvHash is FNV-1a over the shard key.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// SQLTx wraps each transaction in a database transaction; row-level locks
// taken by the stores (SELECT ... FOR UPDATE) provide per-filing
// serialization. A timeout mid-transaction rolls back cleanly.
type SQLTx struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLTx constructs the SQL transaction boundary.
func NewSQLTx(db *sql.DB) *SQLTx {
	return &SQLTx{db: db, timeout: defaultTxTimeout}
}

func (t *SQLTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}

	if err := fn(txctx.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
