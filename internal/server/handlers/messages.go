package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/harshror77/Chaudhary-Estate/internal/realtime"
	"github.com/harshror77/Chaudhary-Estate/internal/server/middleware"
	"github.com/harshror77/Chaudhary-Estate/internal/store"
)

type MessageHandler struct {
	logger  *slog.Logger
	store   *store.MessageStore
	gateway *realtime.Gateway
}

func NewMessageHandler(logger *slog.Logger, st *store.MessageStore, gw *realtime.Gateway) *MessageHandler {
	return &MessageHandler{
		logger:  logger.With(slog.String("component", "message_handler")),
		store:   st,
		gateway: gw,
	}
}

func (h *MessageHandler) Routes(r chi.Router) {
	r.Get("/", h.Sidebar)
	r.Get("/get-message/{receiverId}", h.Conversation)
	r.Post("/send-message/{receiverId}", h.Send)
}

// Sidebar lists the users the caller has exchanged messages with, most
// recent conversation first.
func (h *MessageHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	userID := authedUser(r)

	partners, err := h.store.Partners(userID)
	if err != nil {
		h.logger.Error("Failed to list chat partners", slog.String("userID", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, partners, "Users fetched successfully")
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	userID := authedUser(r)
	receiverID := chi.URLParam(r, "receiverId")
	if receiverID == "" {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	messages, err := h.store.Conversation(userID, receiverID)
	if err != nil {
		h.logger.Error("Failed to fetch conversation", slog.String("userID", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, messages, "Messages retrieved successfully")
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Send persists the message and only then pushes it live to the
// receiver's room, keyed by the persisted record so the receiving client
// can de-duplicate against a later fetch.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := authedUser(r)
	receiverID := chi.URLParam(r, "receiverId")
	if receiverID == "" {
		writeError(w, http.StatusNotFound, "Receiver not found")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.store.Create(userID, receiverID, req.Text, req.Image)
	if err != nil {
		if errors.Is(err, store.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "No content provided")
			return
		}
		h.logger.Error("Failed to persist message", slog.String("userID", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	record, err := json.Marshal(msg)
	if err == nil {
		h.gateway.EmitToRoom(receiverID, realtime.EventReceiveMessage, realtime.ReceiveMessagePayload{
			Message:  record,
			SenderID: userID,
		})
	}

	writeJSON(w, http.StatusOK, msg, "Message sent successfully")
}

// authedUser returns the identity the auth middleware recorded. Routes
// using it sit behind NewAuthMiddleware, so it is always present there.
func authedUser(r *http.Request) string {
	if reqMeta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
		return reqMeta.UserID
	}
	return ""
}
