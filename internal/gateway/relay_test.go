package gateway

import (
	"Parley/internal/api/dto"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNode(t *testing.T, addr string) *Hub {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewHub()
	relay := NewRelay(rdb, "", h)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	go func() {
		_ = relay.Run(ctx)
	}()
	return h
}

func TestRelay_CrossNodeDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	nodeA := startNode(t, mr.Addr())
	nodeB := startNode(t, mr.Addr())
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultRelayChannel)[DefaultRelayChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	onA := newClient(nil, 2, 16)
	onB := newClient(nil, 2, 16)
	require.True(t, nodeA.Register(onA))
	require.True(t, nodeB.Register(onB))

	// onA 先收到本地与 B 转发的 presence:update，再等在途的转发落地
	require.Eventually(t, func() bool { return len(onA.send) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	drain(onA)
	drain(onB)

	nodeA.DeliverToUsers(dto.EventMessageNew, map[string]int{"n": 1}, 2)

	f := next(t, onB)
	assert.Equal(t, dto.EventMessageNew, f.Event)
	assert.JSONEq(t, `{"n":1}`, string(f.Data))

	assert.Equal(t, dto.EventMessageNew, next(t, onA).Event)
	expectNone(t, onA)
	expectNone(t, onB)

	assert.True(t, nodeA.IsLocallyOnline(2))
	assert.False(t, nodeA.IsLocallyOnline(3))
}

func TestRelay_IgnoresOwnAndMalformed(t *testing.T) {
	h := NewHub()
	r := &Relay{node: "self", hub: h}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newClient(nil, 1, 16)
	require.True(t, h.Register(c))
	drain(c)
	h.Stats()
	drain(c)

	r.handle(`{"node":"self","kind":"all","frame":{"event":"x","data":null}}`)
	r.handle(`not json`)
	r.handle(`{"node":"other","kind":"client","frame":{"event":"x","data":null}}`)
	expectNone(t, c)

	r.handle(`{"node":"other","kind":"all","frame":{"event":"x","data":null}}`)
	assert.Equal(t, "x", next(t, c).Event)
}
