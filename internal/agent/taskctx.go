package agent

import (
	"context"
	"sync"
	"time"
)

// Per-consultation context registry used for cancellation and deadlines.
var (
	taskCtxMu  sync.RWMutex
	taskCtx    = make(map[string]context.Context)
	taskCancel = make(map[string]context.CancelFunc)
)

// NewTaskContext creates and stores a cancelable context for id with the given timeout.
func NewTaskContext(parent context.Context, id string, timeout time.Duration) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	taskCtxMu.Lock()
	taskCtx[id] = ctx
	taskCancel[id] = cancel
	taskCtxMu.Unlock()
	return ctx
}

// CancelTask cancels and removes the context of id. It reports whether one
// was registered.
func CancelTask(id string) bool {
	taskCtxMu.Lock()
	defer taskCtxMu.Unlock()
	c, ok := taskCancel[id]
	if ok {
		c()
	}
	delete(taskCancel, id)
	delete(taskCtx, id)
	return ok
}
