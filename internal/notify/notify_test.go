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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_Filter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"withdrawn", " game_created "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "tickets_bought", "t", "m"))
	require.NoError(t, n.Notify(context.Background(), "game_created", "t", "m"))
	assert.Equal(t, []string{"t"}, s.titles)

	assert.False(t, NewNotifier(nil, nil, discardLogger()).Enabled("withdrawn"))
	assert.True(t, NewNotifier([]Sender{s}, nil, discardLogger()).Enabled("anything"))
}

func TestNotifier_SenderFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("down")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "withdrawn", "t", "m")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad:")
	assert.Len(t, good.titles, 1)
}

func TestEventSink_Publish(t *testing.T) {
	s := &recordingSender{name: "rec"}
	sink := NewEventSink(NewNotifier([]Sender{s}, []string{"winnings_claimed"}, discardLogger()))

	dir := domain.DirectionPositive
	ev := domain.Event{
		Type:      domain.EventWinningsClaimed,
		GameID:    2,
		Caller:    "0xabc",
		Direction: &dir,
		Quantity:  10,
		Amount:    "10000000000000000000",
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), ev.Type.Channel(), payload))
	require.NoError(t, sink.Publish(context.Background(), domain.EventTicketsBought.Channel(), []byte("not json")))

	require.Len(t, s.titles, 1)
	assert.Equal(t, "Pavilion: winnings claimed", s.titles[0])
	assert.Equal(t, "game: 2\ncaller: 0xabc\ndirection: positive\nquantity: 10\namount: 10000000000000000000", s.bodies[0])
}

func TestEventSink_BadPayload(t *testing.T) {
	sink := NewEventSink(NewNotifier([]Sender{&recordingSender{name: "rec"}}, nil, discardLogger()))
	err := sink.Publish(context.Background(), domain.EventWithdrawn.Channel(), []byte("{"))
	require.Error(t, err)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "T", "m"))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer failing.Close()
	err := NewDiscordSender(failing.URL).Send(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}
