package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

// State records a connector state transition target.
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
