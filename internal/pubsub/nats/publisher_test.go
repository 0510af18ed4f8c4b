package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/config"
	"poolwatch/internal/domain"
	"poolwatch/internal/state"
)

func runServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(nil, zerolog.Nop())
	assert.EqualError(t, err, "config is required")

	_, err = Connect(&config.NATSConfig{}, zerolog.Nop())
	assert.EqualError(t, err, "nats url is required")
}

func TestClose_NilConnection(t *testing.T) {
	p := &Publisher{}
	assert.NoError(t, p.Close())
	assert.False(t, p.Ready())
	assert.Error(t, p.publish(state.Summary{}))
}

func TestPublisher_OnSnapshot(t *testing.T) {
	url := runServer(t)

	p, err := Connect(&config.NATSConfig{URL: url}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.Ready())
	assert.Equal(t, DefaultSubject, p.Subject())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(DefaultSubject, msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	snap := state.Apply(state.New(target, domain.ModeToken), state.CycleResult{At: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, p.OnSnapshot(context.Background(), state.Update{Snapshot: snap}))

	select {
	case m := <-msgs:
		var sum state.Summary
		require.NoError(t, json.Unmarshal(m.Data, &sum))
		assert.Equal(t, target.Hex(), sum.Target)
		assert.Equal(t, "token", sum.Mode)
		assert.Equal(t, uint64(1), sum.Cycle)
		assert.Nil(t, sum.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestClose_Idempotent(t *testing.T) {
	p, err := Connect(&config.NATSConfig{URL: runServer(t), Subject: "custom.subject"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "custom.subject", p.Subject())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
