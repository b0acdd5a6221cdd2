package bridge

import (
	"sync"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/sirupsen/logrus"
)

// Handler is an ordered in-process consumer of decoded events. All
// handlers run synchronously in frame-arrival order before the event
// reaches any subscriber.
type Handler func(ev types.Event)

// Resolver receives correlated response events keyed by request id
type Resolver interface {
	Resolve(id int64, ev types.Event)
}

// Router decodes raw frames into typed events and dispatches them.
// Response events (send_result, profile_picture) go exclusively to
// the resolver; log events are forwarded to the application logger;
// everything else runs the ordered handlers and is then fanned out to
// subscriber channels. A malformed frame is logged and dropped, never
// allowed to stall the stream.
type Router struct {
	logger   *logrus.Logger
	resolver Resolver

	mu       sync.RWMutex
	handlers []Handler
	subs     map[chan types.Event]struct{}
}

// NewRouter creates a router that feeds correlated responses to the
// given resolver.
func NewRouter(resolver Resolver, logger *logrus.Logger) *Router {
	return &Router{
		logger:   logger,
		resolver: resolver,
		subs:     make(map[chan types.Event]struct{}),
	}
}

// AddHandler registers an ordered handler. Handlers must be registered
// before the supervisor starts dispatching.
func (r *Router) AddHandler(h Handler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Subscribe returns a buffered channel of events. Subscribers that
// fall behind lose events rather than blocking the dispatch path.
func (r *Router) Subscribe() chan types.Event {
	ch := make(chan types.Event, constants.DefaultSubscriberBufferSize)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (r *Router) Unsubscribe(ch chan types.Event) {
	r.mu.Lock()
	if _, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(ch)
	}
	r.mu.Unlock()
}

// Dispatch decodes one frame and routes the resulting event
func (r *Router) Dispatch(frame []byte) {
	ev, err := types.DecodeEvent(frame)
	if err != nil {
		r.logger.WithError(err).WithField("frame_bytes", len(frame)).Warn("Discarding malformed frame")
		return
	}
	if ev == nil {
		// Unrecognized event type, ignored for forward compatibility.
		r.logger.WithField("frame_bytes", len(frame)).Debug("Ignoring unrecognized event type")
		return
	}
	r.Publish(ev)
}

// Publish routes an already-decoded event. The supervisor uses this
// to synthesize a disconnected event on process exit.
func (r *Router) Publish(ev types.Event) {
	switch e := ev.(type) {
	case *types.LogEvent:
		r.forwardLog(e)
		return
	case *types.SendResultEvent:
		r.resolver.Resolve(e.RequestID, e)
		return
	case *types.ProfilePictureEvent:
		r.resolver.Resolve(e.RequestID, e)
		return
	}

	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}

	r.mu.RLock()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.WithField("event_type", string(ev.EventType())).Warn("Dropping event for slow subscriber")
		}
	}
	r.mu.RUnlock()
}

// forwardLog surfaces subprocess diagnostics through the application
// logger. These never reach subscribers.
func (r *Router) forwardLog(e *types.LogEvent) {
	entry := r.logger.WithField("source", "bridge")
	switch e.Level {
	case "error":
		entry.Error(e.Message)
	case "warn":
		entry.Warn(e.Message)
	case "info":
		entry.Info(e.Message)
	default:
		entry.Debug(e.Message)
	}
}
