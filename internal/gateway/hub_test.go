package gateway

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId"`
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func next(t *testing.T, c *Client) rawFrame {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f rawFrame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return rawFrame{}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func presenceOf(t *testing.T, f rawFrame) dto.PresenceUpdate {
	t.Helper()
	require.Equal(t, dto.EventPresenceUpdate, f.Event)
	var p dto.PresenceUpdate
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p
}

func TestHub_PresenceOnlyOnFirstAndLast(t *testing.T) {
	h, _ := startHub(t)
	watcher := newClient(nil, 9, 16)
	require.True(t, h.Register(watcher))
	assert.Equal(t, dto.PresenceUpdate{UserID: 9, Status: consts.PresenceOnline}, presenceOf(t, next(t, watcher)))

	a := newClient(nil, 1, 16)
	b := newClient(nil, 1, 16)
	require.True(t, h.Register(a))
	assert.Equal(t, dto.PresenceUpdate{UserID: 1, Status: consts.PresenceOnline}, presenceOf(t, next(t, watcher)))
	require.True(t, h.Register(b))
	assert.True(t, h.IsLocallyOnline(1))
	expectNone(t, watcher)

	h.Unregister(a)
	assert.True(t, h.IsLocallyOnline(1))
	expectNone(t, watcher)

	h.Unregister(b)
	assert.False(t, h.IsLocallyOnline(1))
	assert.Equal(t, dto.PresenceUpdate{UserID: 1, Status: consts.PresenceOffline}, presenceOf(t, next(t, watcher)))

	users, conns := h.Stats()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, conns)
}

func TestHub_DeliverToUsersReachesEveryHandle(t *testing.T) {
	h, _ := startHub(t)
	a1 := newClient(nil, 1, 16)
	a2 := newClient(nil, 1, 16)
	b := newClient(nil, 2, 16)
	other := newClient(nil, 3, 16)
	for _, c := range []*Client{a1, a2, b, other} {
		require.True(t, h.Register(c))
	}
	h.Stats()
	for _, c := range []*Client{a1, a2, b, other} {
		drain(c)
	}

	h.DeliverToUsers(dto.EventMessageNew, map[string]string{"text": "hi"}, 1, 2, 1)
	for _, c := range []*Client{a1, a2, b} {
		f := next(t, c)
		assert.Equal(t, dto.EventMessageNew, f.Event)
		assert.JSONEq(t, `{"text":"hi"}`, string(f.Data))
		expectNone(t, c)
	}
	expectNone(t, other)
}

func TestHub_RoomExcludesSender(t *testing.T) {
	h, _ := startHub(t)
	a1 := newClient(nil, 1, 16)
	a2 := newClient(nil, 1, 16)
	b := newClient(nil, 2, 16)
	for _, c := range []*Client{a1, a2, b} {
		require.True(t, h.Register(c))
		h.Join("1_2", c)
	}
	h.Stats()
	for _, c := range []*Client{a1, a2, b} {
		drain(c)
	}

	h.DeliverToRoom("1_2", dto.EventTyping, &dto.TypingEvent{UserID: 1, IsTyping: true}, 1)
	assert.Equal(t, dto.EventTyping, next(t, b).Event)
	expectNone(t, a1)
	expectNone(t, a2)
}

func TestHub_FullBufferDropsFrame(t *testing.T) {
	h, _ := startHub(t)
	probe := newClient(nil, 7, 16)
	require.True(t, h.Register(probe))
	slow := newClient(nil, 1, 1)
	require.True(t, h.Register(slow))
	// presence:update 已占满缓冲
	h.DeliverToUsers(dto.EventMessageNew, "dropped", 1)
	barrier(t, h, probe)

	assert.Equal(t, dto.EventPresenceUpdate, next(t, slow).Event)
	expectNone(t, slow)
	assert.True(t, h.IsLocallyOnline(1))
}

// barrier 投递队列先进先出，probe 收到回执说明之前的投递已处理完
func barrier(t *testing.T, h *Hub, probe *Client) {
	t.Helper()
	h.Reply(probe, "barrier", nil, "")
	for {
		if next(t, probe).Event == "barrier" {
			return
		}
	}
}

func TestHub_ReplyIgnoresUnregisteredClient(t *testing.T) {
	h, _ := startHub(t)
	c := newClient(nil, 1, 16)
	require.True(t, h.Register(c))
	h.Unregister(c)
	h.Reply(c, dto.EventAck, &dto.AckResp{Success: true}, "a1")
	h.Stats()

	assert.Equal(t, dto.EventPresenceUpdate, next(t, c).Event)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := newClient(nil, 1, 16)
	require.True(t, h.Register(c))
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	drain(c)
	_, ok := <-c.send
	assert.False(t, ok)

	assert.False(t, h.Register(newClient(nil, 2, 1)))
	assert.False(t, h.IsLocallyOnline(1))
	h.Unregister(c)
	h.DeliverToUsers(dto.EventMessageNew, "x", 1)
}

// drain 清空已缓冲的帧，channel 关闭时停止
func drain(c *Client) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
