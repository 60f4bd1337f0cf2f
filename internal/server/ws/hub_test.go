package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/events"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
)

var marketAdr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func startHub(t *testing.T, bus domain.SignalBus) (*ws.Hub, string) {
	t.Helper()
	hub := ws.NewHub(bus, nil, ws.Config{Market: marketAdr})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	status := readFrame(t, conn)
	assert.Equal(t, "hub_status", status["topic"])
	payload := status["payload"].(map[string]any)
	assert.Equal(t, marketAdr.Hex(), payload["market"])
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	return st.AsMap()
}

func event(seq uint64, topic domain.Topic) domain.Event {
	return domain.Event{Seq: seq, Topic: topic, Epoch: 1, Timestamp: 1_700_000_000, Payload: []byte(`{"price":"100"}`)}
}

func TestHub_DeliversSinkEvents(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), []domain.Event{event(1, domain.TopicRoundLocked)}))

	frame := readFrame(t, conn)
	assert.Equal(t, "round_locked", frame["topic"])
	assert.Equal(t, float64(1), frame["seq"])
	assert.Equal(t, "100", frame["payload"].(map[string]any)["price"])
}

func TestHub_TopicSubscriptions(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"unsubscribe","topics":["*"]}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","topics":["flash_loan"]}`)))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), []domain.Event{
		event(1, domain.TopicRoundStarted),
		event(2, domain.TopicFlashLoan),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "flash_loan", frame["topic"])
	assert.Equal(t, float64(2), frame["seq"])
}

func TestHub_ForwardsBusFrames(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	_, url := startHub(t, bus)
	conn := dial(t, url)
	time.Sleep(20 * time.Millisecond)

	bus.ch <- []byte("not a frame")
	frame, err := events.Encode(event(7, domain.TopicRoundEnded))
	require.NoError(t, err)
	bus.ch <- frame

	got := readFrame(t, conn)
	assert.Equal(t, "round_ended", got["topic"])
	assert.Equal(t, float64(7), got["seq"])
}

func TestHub_DeliverAfterShutdown(t *testing.T) {
	hub := ws.NewHub(nil, nil, ws.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	assert.NoError(t, hub.Deliver(context.Background(), []domain.Event{event(1, domain.TopicBetPlaced)}))
	assert.Equal(t, "ws", hub.Name())
}

func httpHandler(hub *ws.Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	return mux
}
