package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"timed-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
)

// FeedMessage is one message of the attempt feed. Snapshot is set for the
// initial "snapshot" message (nil when nothing is stored yet), Event for
// saved and finished events.
type FeedMessage struct {
	Type     string
	Snapshot *domain.Snapshot
	Event    *domain.AttemptEvent
	Error    string
}

type rawFeedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FeedURL turns the service base URL into the websocket feed URL of attemptID.
func FeedURL(baseURL, attemptID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws/attempt"
	u.RawQuery = url.Values{"attemptId": {attemptID}}.Encode()
	return u.String(), nil
}

// Watch streams the feed of attemptID into fn until ctx is done or the
// server closes the connection.
func Watch(ctx context.Context, baseURL, attemptID string, fn func(FeedMessage)) error {
	feedURL, err := FeedURL(baseURL, attemptID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w: %v", domain.ErrUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var raw rawFeedMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}
		msg, err := decodeFeedMessage(raw)
		if err != nil {
			return err
		}
		fn(msg)
	}
}

func decodeFeedMessage(raw rawFeedMessage) (FeedMessage, error) {
	msg := FeedMessage{Type: raw.Type}
	switch raw.Type {
	case "snapshot":
		if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
			var snap domain.Snapshot
			if err := json.Unmarshal(raw.Payload, &snap); err != nil {
				return msg, fmt.Errorf("%w: snapshot: %v", domain.ErrMalformed, err)
			}
			msg.Snapshot = &snap
		}
	case domain.EventSaved, domain.EventFinished:
		var ev domain.AttemptEvent
		if err := json.Unmarshal(raw.Payload, &ev); err != nil {
			return msg, fmt.Errorf("%w: event: %v", domain.ErrMalformed, err)
		}
		msg.Event = &ev
	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw.Payload, &payload)
		msg.Error = payload.Message
	}
	return msg, nil
}
