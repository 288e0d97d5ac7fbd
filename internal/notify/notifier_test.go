package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := New([]Sender{s}, []string{EventDisputeCreated}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventDisputeCreated, "dispute opened", "market 7"))
	require.NoError(t, n.Notify(context.Background(), EventDisputeFinalized, "dispute finalized", "market 7"))

	require.Equal(t, []string{"dispute opened"}, s.titles)
}

func TestNotifyEmptyAllowlistPassesAll(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := New([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventPollerDegraded, "poller degraded", "3 consecutive failures"))
	require.Len(t, s.titles, 1)
}

func TestAlertBypassesFilter(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := New([]Sender{s}, []string{EventDisputeCreated}, discardLogger())

	require.NoError(t, n.Alert(context.Background(), "poller degraded", "3 consecutive failures"))
	require.Equal(t, []string{"poller degraded"}, s.titles)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("webhook down")}
	good := &recordingSender{name: "good"}
	n := New([]Sender{bad, good}, nil, discardLogger())

	err := n.Alert(context.Background(), "subject", "body")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad: webhook down")
	require.Equal(t, []string{"subject"}, good.titles)
}

func TestTelegramSenderPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token123", "chat42")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "dispute opened", "market 7"))
	require.Equal(t, "chat42", got["chat_id"])
	require.Equal(t, "*dispute opened*\nmarket 7", got["text"])
}

func TestDiscordSenderSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "title", "body")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}
