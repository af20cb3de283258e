package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	a := newClient(nil, 1, 4)
	b := newClient(nil, 1, 4)

	assert.True(t, r.Register(1, a))
	assert.False(t, r.Register(1, a), "duplicate handle")
	assert.False(t, r.Register(1, b))
	assert.Len(t, r.HandlesFor(1), 2)
	assert.True(t, r.IsLocallyOnline(1))

	assert.False(t, r.Unregister(1, a))
	assert.True(t, r.IsLocallyOnline(1))
	assert.False(t, r.Unregister(1, a), "already removed")
	assert.True(t, r.Unregister(1, b))
	assert.False(t, r.IsLocallyOnline(1))
	assert.Empty(t, r.HandlesFor(1))
	assert.NotNil(t, r.HandlesFor(1))
	assert.Equal(t, 0, r.Users())
}

func TestRegistry_Rooms(t *testing.T) {
	r := NewRegistry()
	a := newClient(nil, 1, 4)
	b := newClient(nil, 2, 4)
	stranger := newClient(nil, 3, 4)

	r.Register(1, a)
	r.Register(2, b)
	r.Join("1_2", a)
	r.Join("1_2", b)
	r.Join("1_2", a)
	r.Join("1_2", stranger)

	assert.ElementsMatch(t, []*Client{a, b}, r.RoomMembers("1_2"))

	r.Unregister(2, b)
	assert.Equal(t, []*Client{a}, r.RoomMembers("1_2"))
	r.Unregister(1, a)
	assert.Empty(t, r.RoomMembers("1_2"))
	assert.Empty(t, r.rooms)
	assert.Empty(t, r.joined)
}
