package bridge

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/sirupsen/logrus"
)

// outcome is the terminal result of a pending request: exactly one of
// ev (response) or err (timeout, process exit) is set.
type outcome struct {
	ev  types.Event
	err error
}

type pendingEntry struct {
	ch          chan outcome
	deadline    time.Time
	submittedAt time.Time
}

// Pending is the caller's handle for an in-flight command
type Pending struct {
	id int64
	ch <-chan outcome
}

// ID returns the correlation id assigned to the command
func (p *Pending) ID() int64 { return p.id }

// Wait blocks until the response, timeout or process-exit failure
// arrives, or ctx is done. Abandoning a Pending is safe: the
// correlator still removes the table entry when the outcome fires.
func (p *Pending) Wait(ctx context.Context) (types.Event, error) {
	select {
	case o := <-p.ch:
		return o.ev, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Correlator matches outbound commands to their response events. Ids
// are assigned from a strictly increasing counter starting at 1 and
// are never reused while the process is alive. The pending table and
// counter share one mutex so a response can never race a
// not-yet-inserted entry.
type Correlator struct {
	logger *logrus.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingEntry
	writer  *FrameWriter
}

// NewCorrelator creates a correlator with an empty pending table. A
// writer is bound once the subprocess is spawned.
func NewCorrelator(logger *logrus.Logger) *Correlator {
	return &Correlator{
		logger:  logger,
		nextID:  1,
		pending: make(map[int64]*pendingEntry),
	}
}

// Bind attaches the stdin writer of the live subprocess. Bind(nil)
// detaches it on process exit.
func (c *Correlator) Bind(w *FrameWriter) {
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
}

// Submit assigns the next correlation id, records the pending entry
// with a deadline, and writes the command frame. On write failure the
// entry is removed and the error returned. Lifecycle commands never
// get a response and must be written directly, not submitted.
func (c *Correlator) Submit(cmd types.Command, timeout time.Duration) (*Pending, error) {
	if !cmd.ExpectsResponse() {
		return nil, apperrors.New(apperrors.ErrCodeInternalError, "command does not take a correlated response").
			WithContext("command", string(cmd.Type))
	}

	now := time.Now()
	entry := &pendingEntry{
		ch:          make(chan outcome, 1),
		deadline:    now.Add(timeout),
		submittedAt: now,
	}

	c.mu.Lock()
	w := c.writer
	if w == nil {
		c.mu.Unlock()
		return nil, apperrors.NewNotConnectedError(string(types.StateDisconnected))
	}
	id := c.nextID
	c.nextID++
	cmd.RequestID = id
	c.pending[id] = entry
	c.mu.Unlock()

	if err := w.WriteFrame(&cmd); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"request_id": id,
		"command":    string(cmd.Type),
		"timeout":    timeout.String(),
	}).Debug("Submitted command")

	return &Pending{id: id, ch: entry.ch}, nil
}

// Resolve completes the pending entry matching a response event's
// request id. A resolution for an id that already timed out, or was
// never issued, is a no-op.
func (c *Correlator) Resolve(id int64, ev types.Event) {
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.WithField("request_id", id).Debug("Response for unknown or expired request")
		return
	}
	entry.ch <- outcome{ev: ev}
}

// ExpireOverdue fails every pending entry whose deadline has passed
// and removes it from the table. Returns the number expired.
func (c *Correlator) ExpireOverdue(now time.Time) int {
	type expired struct {
		id    int64
		entry *pendingEntry
	}
	var overdue []expired

	c.mu.Lock()
	for id, entry := range c.pending {
		if now.After(entry.deadline) {
			overdue = append(overdue, expired{id, entry})
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, e := range overdue {
		timeout := e.entry.deadline.Sub(e.entry.submittedAt)
		e.entry.ch <- outcome{err: apperrors.NewTimeoutError(e.id, timeout)}
		c.logger.WithFields(logrus.Fields{
			"request_id": e.id,
			"timeout":    timeout.String(),
		}).Warn("Command timed out")
	}
	return len(overdue)
}

// FailAll completes every pending entry with reason and clears the
// table. Called when the subprocess exits.
func (c *Correlator) FailAll(reason error) int {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[int64]*pendingEntry)
	c.mu.Unlock()

	for _, entry := range drained {
		entry.ch <- outcome{err: reason}
	}
	return len(drained)
}

// PendingCount reports the current pending table size
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	return n
}
