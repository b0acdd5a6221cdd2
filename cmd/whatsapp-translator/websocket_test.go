package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vultuk/whatsapp-translator/pkg/bridge"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsEventsToClients(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&strings.Builder{})

	sup := bridge.NewSupervisor(bridge.Config{BinaryPath: "unused", DataDir: t.TempDir()}, logger)
	hub := NewHub(sup.Router(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Publish until the client's registration has taken effect and a
	// frame comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sup.Router().Publish(&types.QREvent{Data: "pairing-payload"})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &envelope))
	assert.Equal(t, "qr", envelope.Type)

	var qr types.QREvent
	require.NoError(t, json.Unmarshal(envelope.Data, &qr))
	assert.Equal(t, "pairing-payload", qr.Data)
}

func TestHubRunStopsOnContextCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&strings.Builder{})

	sup := bridge.NewSupervisor(bridge.Config{BinaryPath: "unused", DataDir: t.TempDir()}, logger)
	hub := NewHub(sup.Router(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancellation")
	}
}
