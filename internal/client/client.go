// ABOUTME: HTTP client for the murmur-gateway chat API
// ABOUTME: Sends turns, reads history, and consumes SSE live streams

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/murmur-chat/murmur-gateway/internal/live"
)

// ErrConversationNotFound is returned when the requested conversation does
// not exist on the gateway.
var ErrConversationNotFound = errors.New("conversation not found")

// Client talks to a murmur-gateway over its HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the gateway at baseURL (e.g. "http://localhost:8723").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No overall timeout: SSE streams are long-lived. Callers bound
		// requests with their context.
		httpClient: &http.Client{},
	}
}

// TurnAck is the gateway's acknowledgment of an accepted turn.
type TurnAck struct {
	ConversationID string `json:"conversation_id"`
	UserMessageID  string `json:"user_message_id"`
	MessageID      string `json:"message_id"`
	StreamPath     string `json:"stream_path"`
}

// Message is one message in a conversation history response.
type Message struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// Conversation is the durable history of one conversation.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

// sendRequest is the JSON body for POST /api/chat/message.
type sendRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// SendMessage submits a user message and returns the turn acknowledgment.
// Pass an empty conversationID to start a new conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string) (*TurnAck, error) {
	bodyBytes, err := json.Marshal(sendRequest{ConversationID: conversationID, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat/message", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var ack TurnAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &ack, nil
}

// GetConversation fetches the durable history of a conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/chat/conversations/"+conversationID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrConversationNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &conv, nil
}

// StreamEntries consumes a message's live stream, invoking fn for each entry
// until the terminal entry is delivered, the stream ends, or fn returns an
// error. streamPath is the path from a TurnAck.
func (c *Client) StreamEntries(ctx context.Context, streamPath string, fn func(*live.Entry) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	return streamSSE(ctx, resp.Body, fn)
}

// Healthy reports whether the gateway answers its liveness check.
func (c *Client) Healthy(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// streamSSE parses SSE frames off the body and dispatches "update" events.
func streamSSE(ctx context.Context, body io.Reader, fn func(*live.Entry) error) error {
	scanner := bufio.NewScanner(body)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType == "update" && len(dataLines) > 0 {
				var entry live.Entry
				data := strings.Join(dataLines, "\n")
				if err := json.Unmarshal([]byte(data), &entry); err != nil {
					return fmt.Errorf("parsing event data: %w", err)
				}
				if err := fn(&entry); err != nil {
					return err
				}
				if entry.Terminal() {
					return nil
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
	}

	return scanner.Err()
}

// responseError extracts the gateway's JSON error body when present.
func responseError(resp *http.Response) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("gateway error: %s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
