package database

import (
	"context"
	"sync"
)

type txKey struct{}

// TxInfo holds the transaction in context and whether it is owned by the caller.
type TxInfo struct {
	Tx    Transaction
	Owned bool
	hooks *txHooks
}

// txHooks collects callbacks registered against one physical transaction.
// Nested units of work share the owner's hooks.
type txHooks struct {
	mu         sync.Mutex
	committed  []func(context.Context)
	rolledBack []func(context.Context)
	// keyed maps a commit key to its slot in committed.
	keyed map[any]int
}

func (h *txHooks) onCommit(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.committed = append(h.committed, fn)
}

func (h *txHooks) onCommitKeyed(key any, fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i, ok := h.keyed[key]; ok {
		h.committed[i] = fn
		return
	}
	if h.keyed == nil {
		h.keyed = make(map[any]int)
	}
	h.keyed[key] = len(h.committed)
	h.committed = append(h.committed, fn)
}

func (h *txHooks) onRollback(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rolledBack = append(h.rolledBack, fn)
}

// drain returns the callbacks for the outcome and forgets all of them.
func (h *txHooks) drain(committed bool) []func(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := h.rolledBack
	if committed {
		fns = h.committed
	}
	h.committed, h.rolledBack, h.keyed = nil, nil, nil
	return fns
}

// WithTx stores transaction info in the context.
func WithTx(ctx context.Context, tx Transaction, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, TxInfo{Tx: tx, Owned: owned, hooks: &txHooks{}})
}

func withTxInfo(ctx context.Context, info TxInfo) context.Context {
	return context.WithValue(ctx, txKey{}, info)
}

// WithoutTx returns a context that hides any transaction in ctx. Callbacks
// that run after commit use it so their reads go to the connection.
func WithoutTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, TxInfo{})
}

// TxFromContext extracts transaction from the context.
// Returns nil if no transaction is present.
func TxFromContext(ctx context.Context) Transaction {
	info, ok := ctx.Value(txKey{}).(TxInfo)
	if !ok || info.Tx == nil {
		return nil
	}
	return info.Tx
}

// TxInfoFromContext extracts full transaction info from the context.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	info, ok := ctx.Value(txKey{}).(TxInfo)
	if !ok || info.Tx == nil {
		return TxInfo{}, false
	}
	return info, true
}

// OnCommit registers fn to run after the outermost transaction in ctx
// commits. It reports false when ctx carries no transaction.
func OnCommit(ctx context.Context, fn func(context.Context)) bool {
	info, ok := TxInfoFromContext(ctx)
	if !ok || info.hooks == nil {
		return false
	}
	info.hooks.onCommit(fn)
	return true
}

// OnCommitKeyed is OnCommit for callbacks that describe the final state of
// one thing. A later registration under an equal key replaces the earlier
// callback, which then never runs. key must be comparable.
func OnCommitKeyed(ctx context.Context, key any, fn func(context.Context)) bool {
	info, ok := TxInfoFromContext(ctx)
	if !ok || info.hooks == nil {
		return false
	}
	info.hooks.onCommitKeyed(key, fn)
	return true
}

// OnRollback registers fn to run if the outermost transaction in ctx rolls
// back or fails to commit. It reports false when ctx carries no transaction.
func OnRollback(ctx context.Context, fn func(context.Context)) bool {
	info, ok := TxInfoFromContext(ctx)
	if !ok || info.hooks == nil {
		return false
	}
	info.hooks.onRollback(fn)
	return true
}

// ExecutorFromContext returns the transaction if present, otherwise the connection.
// This allows repositories to transparently work within or outside transactions.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}
