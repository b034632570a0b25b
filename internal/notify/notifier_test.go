package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/notify"
)

type recorder struct {
	name   string
	err    error
	titles []string
}

func (r *recorder) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recorder) Name() string { return r.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{rec}, []string{"market_cancelled", " "}, quietLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "bet_placed", "ignored", ""))
	require.NoError(t, n.Notify(ctx, "market_cancelled", "kept", ""))
	require.NoError(t, n.NotifyAll(ctx, "forced", ""))
	assert.Equal(t, []string{"kept", "forced"}, rec.titles)
	assert.True(t, n.Enabled())
	assert.False(t, notify.NewNotifier(nil, nil, quietLogger()).Enabled())
}

func TestNotifier_CollectsSenderFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recorder{name: "bad", err: boom}
	good := &recorder{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, quietLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.titles, 1)
}

func TestRender(t *testing.T) {
	ev := domain.Event{
		Kind:      domain.EventSeasonalClaimed,
		Scope:     domain.ScopeSeasonal,
		ID:        3,
		Actor:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Outcome:   0,
		Amount:    amount.MustParse("232.8", amount.BaseDecimals),
		Secondary: amount.MustParse("12.416", amount.SecondaryDecimals),
		At:        time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	title, msg := notify.Render(ev)
	assert.Equal(t, "seasonal claimed seasonal #3", title)
	assert.Contains(t, msg, "amount: 232.8\n")
	assert.Contains(t, msg, "secondary: 12.416\n")
	assert.Contains(t, msg, "outcome: 0\n")
	assert.Contains(t, msg, "at: 2026-05-01 09:30:00 UTC")
}

func TestTelegramAndDiscordSenders(t *testing.T) {
	var paths []string
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		if r.URL.Path == "/broken" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	ctx := context.Background()

	tg := notify.NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL)
	require.NoError(t, tg.Send(ctx, "Title", "body"))
	assert.Equal(t, "/botTOKEN/sendMessage", paths[0])
	assert.Equal(t, "42", bodies[0]["chat_id"])
	assert.Equal(t, "*Title*\nbody", bodies[0]["text"])

	dc := notify.NewDiscordSender(srv.URL + "/hook")
	require.NoError(t, dc.Send(ctx, "Title", "body"))
	assert.Equal(t, "**Title**\nbody", bodies[1]["content"])

	err := notify.NewDiscordSender(srv.URL+"/broken").Send(ctx, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")
}
