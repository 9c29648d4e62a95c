package pushproto

import (
	"encoding/json"
	"fmt"
)

// Topics the backend publishes on. The user topic is resolved per connection.
const (
	TopicUser      = "/user/queue/notifications"
	TopicBroadcast = "/topic/notifications"
)

type EnvelopeType string

const (
	TypeSubscribe   EnvelopeType = "subscribe"
	TypeUnsubscribe EnvelopeType = "unsubscribe"
	TypeSubscribed  EnvelopeType = "subscribed"
	TypeMessage     EnvelopeType = "message"
	TypeError       EnvelopeType = "error"
)

// Envelope is the JSON frame exchanged over the push WebSocket.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewMessage wraps a payload value for delivery on topic.
func NewMessage(topic string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{Type: TypeMessage, Topic: topic, Payload: body}, nil
}

func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return e, nil
}

// ValidTopic reports whether topic is one the backend serves.
func ValidTopic(topic string) bool {
	return topic == TopicUser || topic == TopicBroadcast
}

// RedisChannel maps a topic onto the pub/sub channel the backend publishes to.
// The user topic needs the recipient's id.
func RedisChannel(prefix, userID, topic string) (string, error) {
	switch topic {
	case TopicUser:
		if userID == "" {
			return "", fmt.Errorf("topic %s requires a user id", topic)
		}
		return prefix + ":user:" + userID, nil
	case TopicBroadcast:
		return prefix + ":broadcast", nil
	default:
		return "", fmt.Errorf("unknown topic %q", topic)
	}
}
