package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
	"devforge.org/internal/token"
)

const (
	// maxPayloadBytes caps any single frame.
	maxPayloadBytes = 48 << 10
	handshakeWait   = 5 * time.Second
	writeWait       = 5 * time.Second
)

// allowedEvents is the inbound allow-list. Anything else is dropped without
// closing the session.
var allowedEvents = map[string]bool{
	"attendance:update": true,
	"notify:parent":     true,
	"contract:signed":   true,
}

// Binder upgrades HTTP requests to websocket sessions bound to exactly one
// school room. The token travels in the query string or the first frame,
// never in a cookie.
type Binder struct {
	hub    *Hub
	tokens *token.Service
}

func NewBinder(hub *Hub, tokens *token.Service) *Binder {
	return &Binder{hub: hub, tokens: tokens}
}

type helloFrame struct {
	Token string `json:"token"`
}

func (b *Binder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	p, ok := b.handshake(r, conn)
	if !ok {
		_ = conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}
	// One session, one room. Platform owners have no school to join.
	if p.SchoolID == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "no school context")
		return
	}

	obs.RealtimeSessionOpened()
	defer obs.RealtimeSessionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	room := p.SchoolID
	sub := b.hub.Subscribe(ctx, room)

	_ = wsjson.Write(ctx, conn, NewEvent("ready", nil))

	readErr := make(chan error, 1)
	go func() {
		readErr <- b.readLoop(ctx, conn, room)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// handshake authenticates the session before it joins any room. The query
// token wins; otherwise the client must send {"token": "..."} as its first
// frame within the handshake window.
func (b *Binder) handshake(r *http.Request, conn *websocket.Conn) (principal.Principal, bool) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		ctx, cancel := context.WithTimeout(r.Context(), handshakeWait)
		defer cancel()
		var hello helloFrame
		if err := wsjson.Read(ctx, conn, &hello); err != nil {
			obs.CountAuthFailure("ws_no_token")
			return principal.Principal{}, false
		}
		raw = hello.Token
	}

	p, err := b.tokens.VerifyAccess(raw)
	if err != nil {
		obs.CountAuthFailure("ws_invalid_token")
		obs.LogAuthEvent("realtime.rejected", "invalid_token", nil)
		return principal.Principal{}, false
	}
	return p, true
}

// readLoop relays allow-listed client events back into the session's own
// room. The room is fixed at handshake; nothing in the payload can change it.
func (b *Binder) readLoop(ctx context.Context, conn *websocket.Conn, room string) error {
	for {
		var evt Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			return err
		}
		if !allowedEvents[evt.Name] {
			continue
		}
		b.hub.Publish(room, NewEvent(evt.Name, evt.Data))
	}
}
