package transport

import (
	"context"

	"github.com/FranckJudes/projet-M2-soutenance-sub002/internal/modules/notification/domain"
)

// Message is one inbound frame. Heartbeat frames carry no payload; they only
// prove the connection is alive.
type Message struct {
	Topic     string
	Payload   []byte
	Heartbeat bool
}

// Session is one live push connection.
type Session interface {
	Subscribe(ctx context.Context, topic string) error
	// Receive blocks until a frame arrives, the session fails or ctx is done.
	Receive(ctx context.Context) (Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens sessions. The connector calls Dial again after every failure.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Sink is the single ingestion path for pushed notifications. The inbox store
// implements it; deduplication by ID happens there.
type Sink interface {
	Upsert(n domain.Notification) (bool, error)
}
