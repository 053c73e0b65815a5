package calendar_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/service/calendar"
)

func testRequest() schedule.EventRequest {
	return schedule.EventRequest{
		ID:          "req-1",
		Title:       "lunch",
		Counterpart: "Mark",
		Start:       time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC),
		Duration:    schedule.DefaultEventDuration,
	}
}

func TestCreateEventSuccess(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["summary"] != "lunch" {
			t.Errorf("unexpected summary: %v", payload["summary"])
		}
		if payload["description"] != "Meeting with Mark" {
			t.Errorf("unexpected description: %v", payload["description"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"eventId": "evt-42"})
	}))
	defer srv.Close()

	client := calendar.NewClient(srv.URL, "work", time.Second)
	eventID, err := client.CreateEvent(context.Background(), "cred", testRequest())
	if err != nil {
		t.Fatalf("CreateEvent err: %v", err)
	}
	if eventID != "evt-42" {
		t.Fatalf("unexpected event id: %q", eventID)
	}
	if gotAuth != "Bearer cred" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotPath != "/calendars/work/events" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestCreateEventStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		wantErr   error
		transient bool
	}{
		{http.StatusUnauthorized, calendar.ErrPermissionDenied, false},
		{http.StatusForbidden, calendar.ErrPermissionDenied, false},
		{http.StatusBadRequest, calendar.ErrInvalidPayload, false},
		{http.StatusUnprocessableEntity, calendar.ErrInvalidPayload, false},
		{http.StatusInternalServerError, nil, true},
		{http.StatusServiceUnavailable, nil, true},
		{http.StatusTooManyRequests, nil, true},
	}

	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		client := calendar.NewClient(srv.URL, "", time.Second)
		_, err := client.CreateEvent(context.Background(), "cred", testRequest())
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if c.wantErr != nil && !errors.Is(err, c.wantErr) {
			t.Fatalf("status %d: got %v want %v", c.status, err, c.wantErr)
		}
		if got := calendar.IsTransient(err); got != c.transient {
			t.Fatalf("status %d: IsTransient=%v want %v", c.status, got, c.transient)
		}
	}
}

func TestCreateEventMalformedBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := calendar.NewClient(srv.URL, "", time.Second)
	_, err := client.CreateEvent(context.Background(), "cred", testRequest())
	if !calendar.IsTransient(err) {
		t.Fatalf("malformed body must be transient, got %v", err)
	}
}

func TestCreateEventNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := calendar.NewClient(srv.URL, "", time.Second)
	_, err := client.CreateEvent(context.Background(), "cred", testRequest())
	if !calendar.IsTransient(err) {
		t.Fatalf("network failure must be transient, got %v", err)
	}
}

func TestCreateEventMissingCredential(t *testing.T) {
	client := calendar.NewClient("http://unreachable.invalid", "", time.Second)
	_, err := client.CreateEvent(context.Background(), "", testRequest())
	if !errors.Is(err, calendar.ErrPermissionDenied) {
		t.Fatalf("got %v want ErrPermissionDenied", err)
	}
}
