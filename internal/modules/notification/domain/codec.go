package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// wireNotification accepts the field spellings emitted by the REST backend, the
// push channel and older frontends (timestamp, creationDate, actionUrl, link, read).
type wireNotification struct {
	ID           json.RawMessage `json:"id"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Type         string          `json:"type"`
	Priority     string          `json:"priority"`
	Status       string          `json:"status"`
	Read         *bool           `json:"read"`
	CreatedAt    json.RawMessage `json:"createdAt"`
	Timestamp    json.RawMessage `json:"timestamp"`
	CreationDate json.RawMessage `json:"creationDate"`
	SourceID     json.RawMessage `json:"sourceId"`
	SourceType   string          `json:"sourceType"`
	ActionLink   string          `json:"actionLink"`
	ActionURL    string          `json:"actionUrl"`
	Link         string          `json:"link"`
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := flexibleString(w.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	sourceID, err := flexibleString(w.SourceID)
	if err != nil {
		return fmt.Errorf("sourceId: %w", err)
	}

	createdAt, err := firstTime(w.CreatedAt, w.Timestamp, w.CreationDate)
	if err != nil {
		return err
	}

	*n = Notification{
		ID:         id,
		Title:      w.Title,
		Message:    w.Message,
		Type:       NotificationType(strings.ToUpper(w.Type)),
		Priority:   normalizePriority(w.Priority),
		Status:     normalizeStatus(w.Status, w.Read),
		CreatedAt:  createdAt,
		SourceID:   sourceID,
		SourceType: w.SourceType,
		ActionLink: firstNonEmpty(w.ActionLink, w.ActionURL, w.Link),
	}
	return nil
}

// DecodeNotification parses one push payload and validates it.
func DecodeNotification(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, err
	}
	if err := n.Validate(); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func normalizePriority(raw string) Priority {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityNormal
	}
}

func normalizeStatus(raw string, read *bool) Status {
	if raw != "" {
		return Status(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if read != nil && *read {
		return StatusRead
	}
	return StatusUnread
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func flexibleString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

func firstTime(candidates ...json.RawMessage) (time.Time, error) {
	for _, raw := range candidates {
		if isNull(raw) {
			continue
		}
		t, err := parseTime(bytes.TrimSpace(raw))
		if err != nil {
			return time.Time{}, fmt.Errorf("createdAt: %w", err)
		}
		return t, nil
	}
	return time.Time{}, nil
}

// parseTime handles RFC 3339 strings, zone-less local date-times (read as UTC),
// unix milliseconds and [y, m, d, h, min, s, nanos] arrays.
func parseTime(raw json.RawMessage) (time.Time, error) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		for _, layout := range localLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	case '[':
		var parts []int
		if err := json.Unmarshal(raw, &parts); err != nil {
			return time.Time{}, err
		}
		if len(parts) < 3 {
			return time.Time{}, fmt.Errorf("time array needs at least 3 elements, got %d", len(parts))
		}
		full := make([]int, 7)
		copy(full, parts)
		return time.Date(full[0], time.Month(full[1]), full[2], full[3], full[4], full[5], full[6], time.UTC), nil
	default:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}
