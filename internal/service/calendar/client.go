package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
)

// Client talks to the calendar backend's REST surface. The session-scoped
// credential is passed per call and never stored on the client.
type Client struct {
	baseURL    string
	calendarID string
	httpClient *http.Client
}

// NewClient builds a calendar client for the given backend base URL.
func NewClient(baseURL, calendarID string, timeout time.Duration) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		calendarID: calendarID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createEventPayload struct {
	RequestID   string `json:"requestId"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type createEventResponse struct {
	EventID string `json:"eventId"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateEvent posts the event once. Classification of the failure mode is
// the caller's contract: permission and payload errors are permanent, the
// rest is transient.
func (c *Client) CreateEvent(ctx context.Context, credential string, req schedule.EventRequest) (string, error) {
	if credential == "" {
		return "", ErrPermissionDenied
	}

	payload := createEventPayload{
		RequestID: req.ID,
		Summary:   req.Title,
		Start:     req.Start.Format(time.RFC3339),
		End:       req.End().Format(time.RFC3339),
	}
	if req.Counterpart != "" {
		payload.Description = "Meeting with " + req.Counterpart
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("calendar: encode event: %w", err)
	}

	url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, c.calendarID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("calendar: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var decoded createEventResponse
		if err := json.Unmarshal(raw, &decoded); err != nil || decoded.EventID == "" {
			return "", &TransientError{Cause: fmt.Errorf("malformed backend response: %s", truncate(raw))}
		}
		log.Printf("[calendar] event created id=%s request=%s", decoded.EventID, req.ID)
		return decoded.EventID, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrPermissionDenied

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", ErrInvalidPayload

	default:
		return "", &TransientError{Cause: fmt.Errorf("backend status %d: %s", resp.StatusCode, truncate(raw))}
	}
}

func truncate(raw []byte) string {
	const limit = 200
	s := string(raw)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
