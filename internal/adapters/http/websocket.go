package http

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripsummary/internal/pkg/metrics"
)

const (
	allTrackEvents = "tracks.>"
	wsPingInterval = 30 * time.Second
)

// wsMessage is sent from client to subscribe/unsubscribe to track events.
type wsMessage struct {
	Action string `json:"action"`  // "subscribe" | "unsubscribe"
	PostID int64  `json:"post_id"` // post filter (optional, 0 = all posts)
	Event  string `json:"event"`   // "uploaded" | "deleted" | "" for both
}

// wsSubject builds the NATS subject for a subscription request.
func wsSubject(m wsMessage) (string, bool) {
	event := m.Event
	switch event {
	case "":
		event = "*"
	case "uploaded", "deleted":
	default:
		return "", false
	}
	if m.PostID > 0 {
		return "tracks." + event + "." + strconv.FormatInt(m.PostID, 10), true
	}
	return "tracks." + event + ".*", true
}

// wsClient is one connected socket and the NATS subjects it follows.
type wsClient struct {
	conn *websocket.Conn
	nc   *nats.Conn

	mu   sync.Mutex // serialises writes
	subs map[string]*nats.Subscription
}

func (w *wsClient) write(typ int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(typ, data)
}

func (w *wsClient) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = w.write(websocket.TextMessage, data)
}

func (w *wsClient) reply(key, value string, extra ...string) {
	msg := map[string]string{key: value}
	for i := 0; i+1 < len(extra); i += 2 {
		msg[extra[i]] = extra[i+1]
	}
	w.send(msg)
}

func (w *wsClient) follow(subject string) error {
	sub, err := w.nc.Subscribe(subject, func(msg *nats.Msg) {
		_ = w.write(websocket.TextMessage, msg.Data)
	})
	if err != nil {
		return err
	}
	w.subs[subject] = sub
	return nil
}

func (w *wsClient) unfollow(subject string) bool {
	sub, ok := w.subs[subject]
	if !ok {
		return false
	}
	_ = sub.Unsubscribe()
	delete(w.subs, subject)
	return true
}

func (w *wsClient) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (w *wsClient) handle(m wsMessage) {
	subject, ok := wsSubject(m)
	if !ok {
		w.reply("error", "unknown event: "+m.Event)
		return
	}

	switch m.Action {
	case "subscribe":
		if _, exists := w.subs[subject]; exists {
			w.reply("status", "already subscribed", "subject", subject)
			return
		}
		if err := w.follow(subject); err != nil {
			w.reply("error", "subscribe failed: "+err.Error())
			return
		}
		w.reply("status", "subscribed", "subject", subject)

	case "unsubscribe":
		// no filter drops the default feed too
		if m.PostID == 0 && m.Event == "" {
			subject = allTrackEvents
		}
		if w.unfollow(subject) {
			w.reply("status", "unsubscribed", "subject", subject)
		} else {
			w.reply("error", "not subscribed to "+subject)
		}

	default:
		w.reply("error", "unknown action: "+m.Action)
	}
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// track events from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","post_id":42,"event":"uploaded"}
// Every client starts subscribed to all track events.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remote := c.RemoteAddr().String()
		if nc == nil {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"events not available"}`))
			return
		}

		client := &wsClient{conn: c, nc: nc, subs: make(map[string]*nats.Subscription)}
		if err := client.follow(allTrackEvents); err != nil {
			slog.Error("ws default subscribe failed", "remote", remote, "error", err)
			return
		}
		slog.Info("ws client connected", "remote", remote)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		done := make(chan struct{})
		go client.keepAlive(done)

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				client.reply("error", "invalid JSON")
				continue
			}
			client.handle(m)
		}

		close(done)
		for subject := range client.subs {
			client.unfollow(subject)
		}
		slog.Info("ws client disconnected", "remote", remote)
	}
}
