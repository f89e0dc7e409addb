package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"devforge.org/internal/principal"
	"devforge.org/internal/token"
)

const (
	schoolA = "33333333-3333-3333-3333-333333333333"
	schoolB = "44444444-4444-4444-4444-444444444444"
)

func newTestBinder(t *testing.T) (*Binder, *token.Service) {
	t.Helper()
	svc, err := token.NewService(
		[]byte("access-secret-0123456789-0123456789"),
		[]byte("refresh-secret-0123456789-0123456789"),
		15*time.Minute, 30*24*time.Hour,
	)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return NewBinder(NewHub(), svc), svc
}

func accessFor(t *testing.T, svc *token.Service, schoolID string) string {
	t.Helper()
	raw, _, err := svc.IssueAccess(principal.Principal{
		Subject:  "user-1",
		Role:     principal.RoleStaff,
		SchoolID: schoolID,
	})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	return raw
}

func wsURL(srv *httptest.Server, query string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + query
}

func dialOK(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var ready Event
	if err := wsjson.Read(ctx, conn, &ready); err != nil {
		t.Fatalf("read ready frame: %v", err)
	}
	if ready.Name != "ready" {
		t.Fatalf("expected ready frame, got %q", ready.Name)
	}
	return conn
}

func TestBinderRejectsInvalidToken(t *testing.T) {
	b, _ := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token=not-a-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var evt Event
	err = wsjson.Read(ctx, conn, &evt)
	if err == nil {
		t.Fatal("expected the session to be closed")
	}
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestBinderRejectsTokenWithoutSchool(t *testing.T) {
	b, svc := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, _, err := svc.IssueAccess(principal.Principal{Subject: "owner-1", Role: principal.RolePlatformOwner})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "?token="+raw), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var evt Event
	if err := wsjson.Read(ctx, conn, &evt); err == nil {
		t.Fatal("expected the session to be closed")
	}
}

func TestBinderRelaysWithinOwnRoomOnly(t *testing.T) {
	b, svc := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer sender.Close(websocket.StatusNormalClosure, "")
	sameRoom := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer sameRoom.Close(websocket.StatusNormalClosure, "")
	otherRoom := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolB)))
	defer otherRoom.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, sender, Event{Name: "attendance:update"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got Event
	if err := wsjson.Read(ctx, sameRoom, &got); err != nil {
		t.Fatalf("same-room read: %v", err)
	}
	if got.Name != "attendance:update" {
		t.Fatalf("unexpected event: %q", got.Name)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	var leaked Event
	if err := wsjson.Read(readCtx, otherRoom, &leaked); err == nil {
		t.Fatalf("event leaked across rooms: %q", leaked.Name)
	}
}

func TestBinderDropsDisallowedEvents(t *testing.T) {
	b, svc := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer sender.Close(websocket.StatusNormalClosure, "")
	receiver := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer receiver.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, sender, Event{Name: "admin:drop_tables"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := wsjson.Write(ctx, sender, Event{Name: "contract:signed"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got Event
	if err := wsjson.Read(ctx, receiver, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Name != "contract:signed" {
		t.Fatalf("disallowed event was relayed, got %q", got.Name)
	}
}

func TestBinderClosesOversizedSessions(t *testing.T) {
	b, svc := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer sender.Close(websocket.StatusNormalClosure, "")
	receiver := dialOK(t, ctx, wsURL(srv, "?token="+accessFor(t, svc, schoolA)))
	defer receiver.Close(websocket.StatusNormalClosure, "")

	payload := json.RawMessage(`"` + strings.Repeat("x", maxPayloadBytes) + `"`)
	if err := wsjson.Write(ctx, sender, Event{Name: "attendance:update", Data: payload}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var evt Event
	err := wsjson.Read(ctx, sender, &evt)
	if err == nil {
		t.Fatal("expected the session to be closed")
	}
	if websocket.CloseStatus(err) != websocket.StatusMessageTooBig {
		t.Fatalf("expected message-too-big close, got %v", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	var leaked Event
	if err := wsjson.Read(readCtx, receiver, &leaked); err == nil {
		t.Fatalf("oversized event was relayed: %q", leaked.Name)
	}
}

func TestBinderAcceptsFirstFrameToken(t *testing.T) {
	b, svc := newTestBinder(t)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, helloFrame{Token: accessFor(t, svc, schoolA)}); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	var ready Event
	if err := wsjson.Read(ctx, conn, &ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Name != "ready" {
		t.Fatalf("expected ready, got %q", ready.Name)
	}
}
