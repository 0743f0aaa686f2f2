package handlers_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harshror77/Chaudhary-Estate/internal/notify"
	"github.com/harshror77/Chaudhary-Estate/internal/realtime"
	"github.com/harshror77/Chaudhary-Estate/internal/server/handlers"
	"github.com/harshror77/Chaudhary-Estate/internal/server/middleware"
	"github.com/harshror77/Chaudhary-Estate/internal/store"
	"github.com/harshror77/Chaudhary-Estate/pkg/state/statemanager"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeTransport struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent [][]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{id: uuid.New()} }

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Close(err error) {}

func (f *fakeTransport) Send(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeTransport) payloadsOf(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range f.sent {
		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env.Event == event {
			out = append(out, env.Payload)
		}
	}
	return out
}

type fixture struct {
	router   *chi.Mux
	gateway  *realtime.Gateway
	messages *store.MessageStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms, err := store.NewMessageStore(db)
	if err != nil {
		t.Fatalf("NewMessageStore: %v", err)
	}
	ns, err := store.NewNotificationStore(db)
	if err != nil {
		t.Fatalf("NewNotificationStore: %v", err)
	}
	dir, err := store.NewDirectory(db)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	logger := newTestLogger()
	gw := realtime.NewGateway(logger, statemanager.NewInMemoryManager(logger))
	dispatcher := notify.NewDispatcher(logger, ns, dir, gw)

	mh := handlers.NewMessageHandler(logger, ms, gw)
	nh := handlers.NewNotificationHandler(logger, ns, dispatcher)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestMetadataMiddleware())
		r.Use(middleware.NewAuthMiddleware(logger, testSecret))
		r.Route("/messages", mh.Routes)
		r.Route("/notifications", nh.Routes)
	})

	return &fixture{router: r, gateway: gw, messages: ms}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func (fx *fixture) do(t *testing.T, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/messages", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSendMessagePersistsThenPushes(t *testing.T) {
	fx := newFixture(t)

	bob := newFakeTransport()
	if _, err := fx.gateway.HandleConnect(bob, "1.1.1.1", "bob"); err != nil {
		t.Fatalf("HandleConnect: %v", err)
	}

	rec := fx.do(t, http.MethodPost, "/api/v1/messages/send-message/bob", `{"text":"hi bob"}`, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	conv, err := fx.messages.Conversation("alice", "bob")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv) != 1 || conv[0].Text != "hi bob" {
		t.Fatalf("message was not persisted: %+v", conv)
	}

	pushes := bob.payloadsOf(t, realtime.EventReceiveMessage)
	if len(pushes) != 1 {
		t.Fatalf("expected 1 live push, got %d", len(pushes))
	}
	var payload realtime.ReceiveMessagePayload
	if err := json.Unmarshal(pushes[0], &payload); err != nil {
		t.Fatalf("bad push payload: %v", err)
	}
	if payload.SenderID != "alice" {
		t.Errorf("expected senderId alice, got %q", payload.SenderID)
	}
	var pushed store.Message
	if err := json.Unmarshal(payload.Message, &pushed); err != nil {
		t.Fatalf("pushed message is not the persisted record: %v", err)
	}
	if pushed.ID != conv[0].ID {
		t.Errorf("pushed record id %q does not match persisted id %q", pushed.ID, conv[0].ID)
	}
}

func TestSendMessageWithoutContentFails(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/messages/send-message/bob", `{}`, "alice")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	fx := newFixture(t)

	// create
	rec := fx.do(t, http.MethodPost, "/api/v1/notifications",
		`{"recipient":"bob","type":"favorite","message":"Alice favorited your listing","property":"prop-1"}`, "alice")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data notify.Enriched `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("bad create response: %v", err)
	}
	if created.Data.ID == "" {
		t.Fatal("create response carries no record id")
	}
	if created.Data.Sender == nil || created.Data.Sender.ID != "alice" {
		t.Errorf("sender should resolve to the caller, got %+v", created.Data.Sender)
	}

	// list as the recipient
	rec = fx.do(t, http.MethodGet, "/api/v1/notifications?page=1&limit=10", "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Data []notify.Enriched `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("bad list response: %v", err)
	}
	if len(listed.Data) != 1 || listed.Data[0].ID != created.Data.ID {
		t.Fatalf("listed notifications mismatch: %+v", listed.Data)
	}

	// mark read
	rec = fx.do(t, http.MethodPut, "/api/v1/notifications/"+created.Data.ID, "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var updated struct {
		Data notify.Enriched `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("bad mark-read response: %v", err)
	}
	if !updated.Data.IsRead {
		t.Error("mark-read response should report the flag set")
	}

	// delete, then the record is gone
	rec = fx.do(t, http.MethodDelete, "/api/v1/notifications/"+created.Data.ID, "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = fx.do(t, http.MethodDelete, "/api/v1/notifications/"+created.Data.ID, "", "bob")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on deleted record, got %d", rec.Code)
	}
}

func TestCreateNotificationRejectsBadInput(t *testing.T) {
	fx := newFixture(t)

	for name, body := range map[string]string{
		"missing recipient": `{"type":"chat","message":"m"}`,
		"missing message":   `{"recipient":"bob","type":"chat"}`,
		"unknown type":      `{"recipient":"bob","type":"selfie","message":"m"}`,
	} {
		rec := fx.do(t, http.MethodPost, "/api/v1/notifications", body, "alice")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}
