package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haidl/tvstream/wire"
)

func newEchoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportSendAndReceive(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	tr, err := Dial(context.Background(), DefaultConfig(wsURL(t, srv)), zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send(wire.VerbSetLocale, []interface{}{"en"}))

	select {
	case frame := <-tr.Frames():
		assert.JSONEq(t, `{"m":"set_locale","p":["en"]}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestTransportHeartbeatEchoedInternally(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, wire.EncodeString("~h~1")))
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
		// Hold the connection open until the client closes it, so a closed
		// Frames channel is not mistaken for a forwarded heartbeat.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), DefaultConfig(wsURL(t, srv)), zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	select {
	case echoed := <-received:
		payloads, err := wire.Decode(echoed)
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.True(t, wire.IsHeartbeat(payloads[0]))
	case <-time.After(time.Second):
		t.Fatal("heartbeat was never echoed back")
	}

	select {
	case <-tr.Frames():
		t.Fatal("heartbeat leaked onto the Frames channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransportCloseIsIdempotent(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	tr, err := Dial(context.Background(), DefaultConfig(wsURL(t, srv)), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err = tr.Send(wire.VerbSetLocale, []interface{}{"en"})
	assert.Error(t, err)
}

func TestTransportFramesClosedOnDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), DefaultConfig(wsURL(t, srv)), zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	select {
	case _, ok := <-tr.Frames():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Frames channel was never closed")
	}
}
