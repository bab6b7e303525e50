// ABOUTME: HTTP API handlers for chat turns, history reads, and SSE live streams
// ABOUTME: Provides POST /api/chat/message and GET /api/chat/conversations endpoints

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/murmur-chat/murmur-gateway/internal/conversation"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/chat/message.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// SendMessageResponse is the JSON response for POST /api/chat/message: the
// assistant placeholder entry plus the addressing a client needs to subscribe
// to the live stream. The reply itself arrives over SSE.
type SendMessageResponse struct {
	ConversationID string `json:"conversation_id"`
	UserMessageID  string `json:"user_message_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	Author         string `json:"author"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	StreamPath     string `json:"stream_path"`
}

// MessageResponse is one message in a history response.
type MessageResponse struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// ConversationResponse is the JSON response for GET /api/chat/conversations/{id}.
type ConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// handleSendMessage handles POST /api/chat/message requests.
// It accepts the user message, starts the assistant turn, and immediately
// returns the assistant placeholder entry with its addressing; clients follow
// stream_path for the reply.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := g.conversation.StartTurn(r.Context(), &conversation.TurnRequest{
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if errors.Is(err, conversation.ErrEmptyMessage) {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		g.logger.Error("failed to start turn", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SendMessageResponse{
		ConversationID: resp.ConversationID,
		UserMessageID:  resp.UserMessageID,
		MessageID:      resp.AssistantMessageID,
		Content:        resp.Entry.Content,
		Author:         resp.Entry.Author,
		Status:         resp.Entry.Status,
		Timestamp:      resp.Entry.Timestamp.Format(time.RFC3339),
		StreamPath: fmt.Sprintf("/api/chat/conversations/%s/messages/%s/events",
			resp.ConversationID, resp.AssistantMessageID),
	})
}

// handleConversationRoutes dispatches GET /api/chat/conversations/{id} and
// GET /api/chat/conversations/{id}/messages/{messageID}/events.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/conversations/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handleGetConversation(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "messages" && parts[3] == "events" && parts[0] != "" && parts[2] != "":
		g.handleMessageEvents(w, r, parts[0], parts[2])
	default:
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
	}
}

// handleGetConversation returns the durable history of one conversation.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation_not_found")
		return
	}
	if err != nil {
		g.logger.Error("failed to read conversation", "error", err, "conversation_id", conversationID)
		g.sendJSONError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}

	response := ConversationResponse{
		ConversationID: conv.ID,
		Messages:       make([]MessageResponse, len(conv.Messages)),
		CreatedAt:      conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      conv.UpdatedAt.Format(time.RFC3339),
	}
	for i, msg := range conv.Messages {
		response.Messages[i] = MessageResponse{
			ID:        msg.ID,
			Body:      msg.Body,
			Author:    msg.Author,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleMessageEvents streams one message's live entries as SSE. The current
// snapshot is delivered first, then every later update; the stream ends after
// the terminal entry.
func (g *Gateway) handleMessageEvents(w http.ResponseWriter, r *http.Request, conversationID, messageID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	entries, subID := g.live.Subscribe(r.Context(), conversationID, messageID)
	defer g.live.Unsubscribe(conversationID, messageID, subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			g.writeSSEEvent(w, "update", entry)
			flusher.Flush()
			if entry.Terminal() {
				return
			}
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendMessageRequest from the given reader.
// Returns an error if the JSON is invalid or the message field is missing.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.Message == "" {
		return nil, errors.New("message is required")
	}

	return &req, nil
}
