package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harshror77/Chaudhary-Estate/internal/server/middleware"
	"github.com/harshror77/Chaudhary-Estate/pkg/config"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
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

func TestHandshakeAuth(t *testing.T) {
	logger := newTestLogger()

	run := func(t *testing.T, req *http.Request) (*middleware.RequestMetadata, *httptest.ResponseRecorder) {
		t.Helper()
		var seen *middleware.RequestMetadata
		var reached bool
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			seen, _ = middleware.ReqMetadataFrom(r.Context())
		})
		chain := middleware.Chain(inner,
			middleware.RequestMetadataMiddleware(),
			middleware.NewHandshakeAuthMiddleware(logger, testSecret),
		)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK && !reached {
			t.Fatal("handler not reached despite 200")
		}
		return seen, rec
	}

	t.Run("no token connects anonymously", func(t *testing.T) {
		seen, rec := run(t, httptest.NewRequest(http.MethodGet, "/ws", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
		if seen.UserID != "" {
			t.Errorf("anonymous handshake should carry no identity, got %q", seen.UserID)
		}
	})

	t.Run("query token resolves identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, "u1"), nil)
		seen, rec := run(t, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
		if seen.UserID != "u1" {
			t.Errorf("expected identity u1, got %q", seen.UserID)
		}
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)
		_, rec := run(t, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestSessionLimiter(t *testing.T) {
	logger := newTestLogger()

	newChain := func(cfg config.SessionConfig, count int, cycled *[]string) http.Handler {
		counter := func(userID string) (int, error) { return count, nil }
		cycler := func(userID string) { *cycled = append(*cycled, userID) }
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		return middleware.Chain(inner,
			middleware.RequestMetadataMiddleware(),
			middleware.NewHandshakeAuthMiddleware(logger, testSecret),
			middleware.NewSessionLimiter(logger, counter, cycler, cfg),
		)
	}

	identified := func(t *testing.T) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, "u1"), nil)
	}

	t.Run("single mode cycles the existing connection", func(t *testing.T) {
		var cycled []string
		chain := newChain(config.SessionConfig{Mode: config.SessionModeSingle, MaxPerUser: 4}, 1, &cycled)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, identified(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("single mode must admit the new connection, got %d", rec.Code)
		}
		if len(cycled) != 1 || cycled[0] != "u1" {
			t.Fatalf("expected the previous connection of u1 to be cycled, got %v", cycled)
		}
	})

	t.Run("single mode admits a first connection without cycling", func(t *testing.T) {
		var cycled []string
		chain := newChain(config.SessionConfig{Mode: config.SessionModeSingle, MaxPerUser: 4}, 0, &cycled)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, identified(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected admit, got %d", rec.Code)
		}
		if len(cycled) != 0 {
			t.Fatalf("nothing should be cycled, got %v", cycled)
		}
	})

	t.Run("multi mode rejects beyond the cap", func(t *testing.T) {
		var cycled []string
		chain := newChain(config.SessionConfig{Mode: config.SessionModeMulti, MaxPerUser: 2}, 2, &cycled)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, identified(t))
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if len(cycled) != 0 {
			t.Fatalf("multi mode must not cycle, got %v", cycled)
		}
	})

	t.Run("multi mode admits below the cap", func(t *testing.T) {
		var cycled []string
		chain := newChain(config.SessionConfig{Mode: config.SessionModeMulti, MaxPerUser: 2}, 1, &cycled)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, identified(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected admit, got %d", rec.Code)
		}
	})

	t.Run("anonymous requests bypass the limiter", func(t *testing.T) {
		var cycled []string
		chain := newChain(config.SessionConfig{Mode: config.SessionModeSingle, MaxPerUser: 1}, 99, &cycled)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("anonymous handshake should pass through, got %d", rec.Code)
		}
	})
}
