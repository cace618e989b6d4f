package app

import (
	"errors"
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	key      string
	err      error
	released int
	log      *[]string
}

func (h *fakeHandle) Key() string { return h.key }

func (h *fakeHandle) Release() error {
	h.released++
	if h.log != nil {
		*h.log = append(*h.log, h.key)
	}
	return h.err
}

func TestListenerRegistry_DuplicateRejectedUntilReleased(t *testing.T) {
	reg := NewListenerRegistry()

	first := &fakeHandle{key: MessagesKey("c1")}
	require.NoError(t, reg.Register(first))

	err := reg.Register(&fakeHandle{key: MessagesKey("c1")})
	assert.ErrorIs(t, err, domain.ErrDuplicateSubscription)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.ReleaseAll())
	assert.Equal(t, 1, first.released)
	assert.Equal(t, 0, reg.Len())

	assert.NoError(t, reg.Register(&fakeHandle{key: MessagesKey("c1")}))
}

func TestListenerRegistry_ReleaseAllInRegistrationOrder(t *testing.T) {
	reg := NewListenerRegistry()
	var order []string

	for _, key := range []string{ConversationsKey("u1"), MessagesKey("c2"), MessagesKey("c1")} {
		require.NoError(t, reg.Register(&fakeHandle{key: key, log: &order}))
	}

	require.NoError(t, reg.ReleaseAll())
	assert.Equal(t, []string{"conversations:u1", "messages:c2", "messages:c1"}, order)
}

func TestListenerRegistry_ReleaseAllAggregatesErrors(t *testing.T) {
	reg := NewListenerRegistry()
	ok := &fakeHandle{key: "a"}
	bad1 := &fakeHandle{key: "b", err: errors.New("boom b")}
	bad2 := &fakeHandle{key: "c", err: errors.New("boom c")}
	for _, h := range []*fakeHandle{bad1, ok, bad2} {
		require.NoError(t, reg.Register(h))
	}

	err := reg.ReleaseAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom b")
	assert.Contains(t, err.Error(), "boom c")
	// 失敗也要全部釋放
	assert.Equal(t, 1, ok.released)
	assert.Equal(t, 0, reg.Len())
}

func TestListenerRegistry_ReleaseSingleKey(t *testing.T) {
	reg := NewListenerRegistry()
	h := &fakeHandle{key: MessagesKey("c1")}
	require.NoError(t, reg.Register(h))

	assert.NoError(t, reg.Release("messages:unknown"))
	assert.NoError(t, reg.Release(MessagesKey("c1")))
	assert.Equal(t, 1, h.released)

	_, found := reg.Get(MessagesKey("c1"))
	assert.False(t, found)
	assert.NoError(t, reg.Register(&fakeHandle{key: MessagesKey("c1")}))
}
