package handlers

import (
	"github.com/dealopia/deals-service/internal/engine"
	"github.com/dealopia/deals-service/internal/taskqueue"
)

// Package-level dependencies, set once at startup before routes are served.
var (
	eng   *engine.Engine
	queue *taskqueue.TaskQueue
)

// Init wires the handler package's dependencies. queue may be nil when the
// task queue is not configured; the endpoints that need it return 503.
func Init(e *engine.Engine, q *taskqueue.TaskQueue) {
	eng = e
	queue = q
}
