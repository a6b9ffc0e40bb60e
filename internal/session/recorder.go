package session

import (
	"context"
	"time"

	"github.com/zulandar/docchat/internal/conversation"
	"go.uber.org/zap"
)

// Recorder receives a durable copy of everything that happens to the
// conversation. Calls arrive in order on a single goroutine; an error is
// logged and never changes controller state.
type Recorder interface {
	SessionStarted(ctx context.Context, sessionID string, greeting conversation.Turn) error
	TurnAppended(ctx context.Context, sessionID string, turn conversation.Turn) error
	TurnRolledBack(ctx context.Context, sessionID string, sequence int) error
	DocumentAttached(ctx context.Context, sessionID, document string) error
	SessionReset(ctx context.Context, sessionID string, turn conversation.Turn) error
}

// recordQueueSize bounds how far the recorder may lag behind the controller.
// Records that arrive while the queue is full are dropped.
const recordQueueSize = 64

// DefaultRecordTimeout bounds a single Recorder call.
const DefaultRecordTimeout = 5 * time.Second

type record struct {
	name  string
	apply func(ctx context.Context, r Recorder) error
}

func turnAppended(id string, t conversation.Turn) record {
	return record{name: "turn_appended", apply: func(ctx context.Context, r Recorder) error {
		return r.TurnAppended(ctx, id, t)
	}}
}

func turnRolledBack(id string, seq int) record {
	return record{name: "turn_rolled_back", apply: func(ctx context.Context, r Recorder) error {
		return r.TurnRolledBack(ctx, id, seq)
	}}
}

func documentAttached(id, doc string) record {
	return record{name: "document_attached", apply: func(ctx context.Context, r Recorder) error {
		return r.DocumentAttached(ctx, id, doc)
	}}
}

func sessionReset(id string, t conversation.Turn) record {
	return record{name: "session_reset", apply: func(ctx context.Context, r Recorder) error {
		return r.SessionReset(ctx, id, t)
	}}
}

func sessionStarted(id string, t conversation.Turn) record {
	return record{name: "session_started", apply: func(ctx context.Context, r Recorder) error {
		return r.SessionStarted(ctx, id, t)
	}}
}

// drainRecords applies queued records until the queue is closed.
func (c *Controller) drainRecords() {
	defer close(c.recordDone)
	for rec := range c.records {
		ctx, cancel := context.WithTimeout(context.Background(), c.recordTimeout)
		err := rec.apply(ctx, c.recorder)
		cancel()
		if err != nil {
			c.logger.Warn("transcript write failed",
				zap.String("event", rec.name),
				zap.Error(err))
		}
	}
}

// recordLocked queues rec for the recorder without blocking. Callers must
// hold c.mu.
func (c *Controller) recordLocked(rec record) {
	if c.records == nil || c.stopped {
		return
	}
	select {
	case c.records <- rec:
	default:
		c.logger.Warn("transcript queue full, dropping record",
			zap.String("event", rec.name))
	}
}
