package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/notify"
)

type fakeSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return f.err
}

func roundEnded(epoch uint64) domain.Event {
	p, _ := sonnet.Marshal(domain.RoundEndedPayload{Timestamp: 1, Price: domain.NewAmount(120)})
	return domain.Event{Seq: epoch, Topic: domain.TopicRoundEnded, Epoch: epoch, Payload: p}
}

func TestNotifier_FiltersByTopic(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{" round_ended "}, nil)

	err := n.Deliver(context.Background(), []domain.Event{
		{Seq: 1, Topic: domain.TopicBetPlaced},
		roundEnded(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Round 2 ended"}, s.titles)
}

func TestNotifier_OneFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("offline")}
	good := &fakeSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, nil)

	err := n.NotifyAll(context.Background(), "hello", "world")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: offline")
	assert.Equal(t, []string{"hello"}, good.titles)
}

func TestFormat(t *testing.T) {
	acct := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	p, _ := sonnet.Marshal(domain.FlashLoanPayload{Amount: domain.NewAmount(1000), Fee: domain.NewAmount(5)})
	title, msg := notify.Format(domain.Event{Topic: domain.TopicFlashLoan, Account: &acct, Payload: p})
	assert.Equal(t, "Flash loan", title)
	assert.Contains(t, msg, "borrowed 1000, fee 5")

	title, msg = notify.Format(roundEnded(9))
	assert.Equal(t, "Round 9 ended", title)
	assert.Equal(t, "Close price 120 at 1", msg)
}

func TestDiscordSender_PostsEmbed(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Round 1 ended", "Close price 5"))
	assert.Contains(t, string(got), `"title":"Round 1 ended"`)
}

func TestDiscordSender_ReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notify.NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTelegramSender_SendsMessage(t *testing.T) {
	var (
		mu   sync.Mutex
		sent url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"market_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			mu.Lock()
			sent = r.PostForm
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := notify.NewTelegramSender(notify.TelegramConfig{
		Token:      "tok",
		ChatID:     "42",
		RetryDelay: time.Millisecond,
		Endpoint:   srv.URL + "/bot%s/%s",
	})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "Round 1.5", "ok"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", sent.Get("chat_id"))
	assert.Equal(t, "*Round 1\\.5*\nok", sent.Get("text"))
	assert.Equal(t, "MarkdownV2", sent.Get("parse_mode"))
}

func TestTelegramSender_RejectsBadChatID(t *testing.T) {
	_, err := notify.NewTelegramSender(notify.TelegramConfig{Token: "tok", ChatID: "general"})
	assert.Error(t, err)
}
