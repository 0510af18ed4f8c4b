package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/domain"
	"poolwatch/internal/state"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T, store *state.Store, interval time.Duration) (*Hub, string) {
	t.Helper()
	h := New(Config{Interval: interval}, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHub_PlaceholderThenSnapshot(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	store := state.NewStore(state.New(target, domain.ModeToken))
	_, url := startHub(t, store, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, EventLiveData, first.Event)
	assert.JSONEq(t, `{"message":"Simulated real-time data"}`, string(first.Data))

	store.Publish(state.Apply(store.Load(), state.CycleResult{At: time.Now()}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no snapshot frame received")
		f := readFrame(t, conn)
		var sum state.Summary
		if err := json.Unmarshal(f.Data, &sum); err != nil || sum.Cycle == 0 {
			continue
		}
		assert.Equal(t, uint64(1), sum.Cycle)
		assert.Equal(t, target.Hex(), sum.Target)
		break
	}
}

func TestHub_ClientCount(t *testing.T) {
	h, url := startHub(t, state.NewStore(state.Snapshot{}), time.Hour)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	readFrame(t, conn)
	assert.Equal(t, 1, h.ClientCount())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New(Config{Interval: time.Hour, SendQueue: 1}, state.NewStore(state.Snapshot{}), zerolog.Nop())
	c := &client{id: "slow", send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.deliver(c, []byte("a"))
	h.deliver(c, []byte("b"))

	_, stillThere := h.clients[c]
	assert.False(t, stillThere)
	assert.Equal(t, 0, h.ClientCount())

	msg, ok := <-c.send
	assert.True(t, ok)
	assert.Equal(t, "a", string(msg))
	_, ok = <-c.send
	assert.False(t, ok, "send queue must be closed")
}
