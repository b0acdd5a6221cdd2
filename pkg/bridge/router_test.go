package bridge

import (
	"io"
	"sync"
	"testing"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu       sync.Mutex
	resolved map[int64]types.Event
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{resolved: make(map[int64]types.Event)}
}

func (r *fakeResolver) Resolve(id int64, ev types.Event) {
	r.mu.Lock()
	r.resolved[id] = ev
	r.mu.Unlock()
}

func (r *fakeResolver) get(id int64) types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[id]
}

func TestRouterDispatchRunsHandlersInOrder(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	var order []string
	router.AddHandler(func(ev types.Event) { order = append(order, "first") })
	router.AddHandler(func(ev types.Event) { order = append(order, "second") })

	router.Dispatch([]byte(`{"type":"connected","phone":"1","name":"t"}`))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRouterResponsesGoToResolverOnly(t *testing.T) {
	resolver := newFakeResolver()
	router := NewRouter(resolver, testLogger())

	handled := 0
	router.AddHandler(func(ev types.Event) { handled++ })
	sub := router.Subscribe()

	router.Dispatch([]byte(`{"type":"send_result","request_id":5,"success":true}`))
	router.Dispatch([]byte(`{"type":"profile_picture","request_id":6,"jid":"x@s.whatsapp.net"}`))

	require.NotNil(t, resolver.get(5))
	require.NotNil(t, resolver.get(6))
	assert.Equal(t, 0, handled)
	assert.Empty(t, sub)
}

func TestRouterLogEventsNeverReachSubscribers(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	handled := 0
	router.AddHandler(func(ev types.Event) { handled++ })
	sub := router.Subscribe()

	router.Dispatch([]byte(`{"type":"log","level":"info","message":"provider says hi"}`))

	assert.Equal(t, 0, handled)
	assert.Empty(t, sub)
}

func TestRouterFansOutToSubscribers(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	first := router.Subscribe()
	second := router.Subscribe()

	router.Dispatch([]byte(`{"type":"qr","data":"abc"}`))

	ev := <-first
	assert.Equal(t, types.EventQR, ev.EventType())
	ev = <-second
	assert.Equal(t, types.EventQR, ev.EventType())
}

func TestRouterDropsForSlowSubscriber(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	slow := router.Subscribe()
	for i := 0; i < constants.DefaultSubscriberBufferSize+10; i++ {
		router.Publish(&types.ErrorEvent{Code: "E", Message: "overflow"})
	}

	// The buffer filled and the excess was dropped, not blocked on.
	assert.Len(t, slow, constants.DefaultSubscriberBufferSize)
}

func TestRouterUnsubscribeClosesChannel(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	sub := router.Subscribe()
	router.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)

	// A second unsubscribe of the same channel is a no-op.
	router.Unsubscribe(sub)
}

func TestRouterDiscardsMalformedFrame(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	handled := 0
	router.AddHandler(func(ev types.Event) { handled++ })

	router.Dispatch([]byte(`{"type":"qr","data":`))
	router.Dispatch([]byte(`not json at all`))
	assert.Equal(t, 0, handled)
}

func TestSplitLogFrameYieldsOneForwardedEntry(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	router := NewRouter(newFakeResolver(), logger)

	r, w := io.Pipe()
	go func() {
		w.Write([]byte(`{"type":"lo`))
		w.Write([]byte(`g","level":"info","message":"x"}` + "\n"))
		w.Close()
	}()

	fr := NewFrameReader(r)
	frames := 0
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			break
		}
		frames++
		router.Dispatch(frame)
	}
	assert.Equal(t, 1, frames)

	forwarded := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "x" {
			forwarded++
			assert.Equal(t, logrus.InfoLevel, entry.Level)
		}
	}
	assert.Equal(t, 1, forwarded)
}

func TestRouterIgnoresUnknownEventType(t *testing.T) {
	router := NewRouter(newFakeResolver(), testLogger())

	handled := 0
	router.AddHandler(func(ev types.Event) { handled++ })

	router.Dispatch([]byte(`{"type":"some_future_event","data":1}`))
	assert.Equal(t, 0, handled)
}
