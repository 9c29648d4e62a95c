package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/shared/logger"
	"github.com/FranckJudes/projet-M2-soutenance-sub002/pkg/pushproto"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	maxMessageBytes = 64 * 1024
)

// WebSocketDialer connects to the backend push endpoint.
type WebSocketDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Session, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return newWebSocketSession(conn, logger.OrDefault(d.Logger)), nil
}

type webSocketSession struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	inbound chan Message
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	readErr error
}

func newWebSocketSession(conn *websocket.Conn, l *slog.Logger) *webSocketSession {
	s := &webSocketSession{
		conn:    conn,
		logger:  l,
		inbound: make(chan Message),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageBytes)
	conn.SetPingHandler(func(appData string) error {
		s.push(Message{Heartbeat: true})
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.push(Message{Heartbeat: true})
		return nil
	})
	go s.readPump()
	return s
}

func (s *webSocketSession) readPump() {
	defer close(s.inbound)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}
		env, err := pushproto.Decode(data)
		if err != nil {
			// Undecodable frames still count as liveness; the payload is lost.
			s.logger.Warn("dropping undecodable frame", logger.Error(err))
			s.push(Message{Heartbeat: true})
			continue
		}
		switch env.Type {
		case pushproto.TypeMessage:
			s.push(Message{Topic: env.Topic, Payload: env.Payload})
		case pushproto.TypeError:
			s.logger.Warn("server reported error", logger.Topic(env.Topic), slog.String("error", env.Error))
			s.push(Message{Heartbeat: true})
		default:
			s.push(Message{Heartbeat: true})
		}
	}
}

func (s *webSocketSession) push(m Message) {
	select {
	case s.inbound <- m:
	case <-s.done:
	}
}

func (s *webSocketSession) Subscribe(ctx context.Context, topic string) error {
	return s.writeEnvelope(ctx, pushproto.Envelope{Type: pushproto.TypeSubscribe, Topic: topic})
}

// Receive returns the next frame. readErr is published by closing inbound.
func (s *webSocketSession) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m, ok := <-s.inbound:
		if !ok {
			return Message{}, s.readErr
		}
		return m, nil
	}
}

func (s *webSocketSession) Ping(ctx context.Context) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (s *webSocketSession) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.writeEnvelope(context.Background(), pushproto.Envelope{Type: pushproto.TypeUnsubscribe})
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *webSocketSession) writeEnvelope(ctx context.Context, env pushproto.Envelope) error {
	data, err := pushproto.Encode(env)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
