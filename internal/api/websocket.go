package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Push event types the access point sends over the websocket channel.
const (
	EventDeviceChanged = "DEVICE_CHANGED"
	EventGroupChanged  = "GROUP_CHANGED"
	EventHomeChanged   = "HOME_CHANGED"
)

// Event is one push notification from the access point. Only the event
// type is interpreted; the exporter refetches the full state rather than
// patching individual objects.
type Event struct {
	Type string
}

type pushMessage struct {
	Events map[string]struct {
		PushEventType string `json:"pushEventType"`
	} `json:"events"`
}

// EventListener maintains the websocket connection to the access point and
// forwards push events. The connection is re-established with a fixed
// backoff; a dead websocket never affects the polling collector.
type EventListener struct {
	session *Session
	events  chan Event
	backoff time.Duration
}

// NewEventListener creates a listener bound to the given session. The
// session must have been connected so the websocket endpoint is known.
func NewEventListener(session *Session) *EventListener {
	return &EventListener{
		session: session,
		events:  make(chan Event, 16),
		backoff: 10 * time.Second,
	}
}

// Events returns the channel push events are delivered on. Events are
// dropped when the channel is full; the periodic collector catches up.
func (l *EventListener) Events() <-chan Event {
	return l.events
}

// Run connects and reads push events until the context is cancelled.
func (l *EventListener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("websocket connection lost, reconnecting", "error", err, "backoff", l.backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func (l *EventListener) listen(ctx context.Context) error {
	wsURL := l.session.WebsocketURL()
	if wsURL == "" {
		return ErrNoWebsocketEndpoint
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, l.session.AuthHeaders())
	if err != nil {
		if resp != nil {
			return NewWebsocketError(wsURL, resp.StatusCode, err)
		}
		return err
	}
	defer conn.Close()

	slog.Info("websocket connected", "url", wsURL)

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.dispatch(data)
	}
}

func (l *EventListener) dispatch(data []byte) {
	var msg pushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ignoring unparsable push message", "error", err)
		return
	}

	for _, ev := range msg.Events {
		if ev.PushEventType == "" {
			continue
		}
		select {
		case l.events <- Event{Type: ev.PushEventType}:
		default:
			slog.Debug("event channel full, dropping push event", "type", ev.PushEventType)
		}
	}
}
