package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoPushServer acknowledges every subscribe and then pushes one message on it.
func echoPushServer(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := pushproto.Decode(data)
			if err != nil || env.Type != pushproto.TypeSubscribe {
				continue
			}
			ack, _ := pushproto.Encode(pushproto.Envelope{Type: pushproto.TypeSubscribed, Topic: env.Topic})
			_ = conn.WriteMessage(websocket.TextMessage, ack)
			msg, _ := pushproto.NewMessage(env.Topic, map[string]string{"id": "n-" + env.Topic})
			out, _ := pushproto.Encode(msg)
			_ = conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
}

func TestWebSocketSession_SubscribeReceivePing(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoPushServer(t, auth)
	defer srv.Close()

	d := &WebSocketDialer{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:  "secret",
		Logger: logger.Discard(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := d.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, "Bearer secret", <-auth)

	require.NoError(t, sess.Subscribe(ctx, pushproto.TopicBroadcast))

	ack, err := sess.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, ack.Heartbeat)

	msg, err := sess.Receive(ctx)
	require.NoError(t, err)
	assert.False(t, msg.Heartbeat)
	assert.Equal(t, pushproto.TopicBroadcast, msg.Topic)
	assert.JSONEq(t, `{"id":"n-/topic/notifications"}`, string(msg.Payload))

	require.NoError(t, sess.Ping(ctx))
	pong, err := sess.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, pong.Heartbeat)
}

func TestWebSocketSession_ReceiveFailsAfterServerCloses(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoPushServer(t, auth)

	d := &WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: logger.Discard()}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := d.Dial(ctx)
	require.NoError(t, err)
	defer sess.Close()
	assert.Empty(t, <-auth)

	srv.CloseClientConnections()
	srv.Close()

	_, err = sess.Receive(ctx)
	assert.Error(t, err)
}

func TestWebSocketDialer_Refused(t *testing.T) {
	d := &WebSocketDialer{URL: "ws://127.0.0.1:1/ws"}
	_, err := d.Dial(context.Background())
	assert.Error(t, err)
}
