package middleware

import (
	"log/slog"
	"net/http"

	"github.com/harshror77/Chaudhary-Estate/pkg/config"
)

type UserConnectionCounter func(userID string) (int, error)
type UserConnectionCycler func(userID string)

// NewSessionLimiter enforces the configured session policy before a
// WebSocket upgrade. Mode "single" allows one live connection per identity
// and cycles (closes) the previous one when a new connection arrives.
// Mode "multi" admits up to MaxPerUser concurrent connections and rejects
// beyond that. Anonymous requests carry no identity and pass through.
func NewSessionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.SessionConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Session limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if reqMeta.UserID == "" {
				next.ServeHTTP(w, r)
				return
			}

			maxPerUser := cfg.MaxPerUser
			if cfg.Mode == config.SessionModeSingle {
				maxPerUser = 1
			}
			if maxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count, err := counter(reqMeta.UserID)
			if err != nil {
				logger.Error("Session limiter failed to get connection count", slog.Any("error", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if count < maxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User session limit reached", slog.String("userID", reqMeta.UserID), slog.Int("count", count))
			switch cfg.Mode {
			case config.SessionModeSingle:
				cycler(reqMeta.UserID)
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			}
		})
	}
}
