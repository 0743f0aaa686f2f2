package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/harshror77/Chaudhary-Estate/internal/notify"
	"github.com/harshror77/Chaudhary-Estate/internal/store"
)

type NotificationHandler struct {
	logger     *slog.Logger
	store      *store.NotificationStore
	dispatcher *notify.Dispatcher
}

func NewNotificationHandler(logger *slog.Logger, st *store.NotificationStore, d *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{
		logger:     logger.With(slog.String("component", "notification_handler")),
		store:      st,
		dispatcher: d,
	}
}

func (h *NotificationHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Put("/{notificationId}", h.MarkRead)
	r.Delete("/{notificationId}", h.Delete)
}

type createNotificationRequest struct {
	Recipient string                 `json:"recipient"`
	Type      store.NotificationType `json:"type"`
	Property  string                 `json:"property"`
	Message   string                 `json:"message"`
}

// Create persists the notification and pushes it live to the recipient if
// they are online. The sender is always the authenticated caller.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := authedUser(r)

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Recipient == "" || req.Message == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "Recipient, message and type are required")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown notification type")
		return
	}

	enriched, err := h.dispatcher.Dispatch(notify.CreateInput{
		Recipient: req.Recipient,
		Sender:    userID,
		Property:  req.Property,
		Message:   req.Message,
		Type:      req.Type,
	})
	if err != nil {
		h.logger.Error("Failed to create notification", slog.String("senderID", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to create notification")
		return
	}
	writeJSON(w, http.StatusCreated, enriched, "Notification created successfully")
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := authedUser(r)

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	records, err := h.store.ListByRecipient(userID, page, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", slog.String("userID", userID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	enriched := make([]*notify.Enriched, len(records))
	for i, n := range records {
		enriched[i] = h.dispatcher.Enrich(n)
	}
	writeJSON(w, http.StatusOK, enriched, "Notifications fetched successfully")
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationId")

	updated, err := h.store.MarkRead(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		h.logger.Error("Failed to mark notification read", slog.String("notificationID", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to update notification")
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Enrich(updated), "Notification marked as read")
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationId")

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		h.logger.Error("Failed to delete notification", slog.String("notificationID", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to delete notification")
		return
	}
	writeJSON(w, http.StatusOK, nil, "Notification deleted successfully")
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
