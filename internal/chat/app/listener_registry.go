package app

import (
	"fmt"
	"sync"

	"chat_sync_service/internal/chat/domain"

	"go.uber.org/multierr"
)

// Handle definition a releasable subscription
type Handle interface {
	// Key logical subscription, e.g. messages:<conversationID>
	Key() string
	Release() error
}

// MessagesKey registry key of a conversation's message stream
func MessagesKey(conversationID string) string {
	return "messages:" + conversationID
}

// ConversationsKey registry key of a user's conversation list watch
func ConversationsKey(userID string) string {
	return "conversations:" + userID
}

// ListenerRegistry tracks the subscriptions of one owning scope (a connection, a view)
type ListenerRegistry struct {
	mu      sync.Mutex
	handles map[string]Handle
	order   []string
}

// NewListenerRegistry create empty registry
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{handles: make(map[string]Handle)}
}

// Register track handle. A second live handle for the same key is rejected.
func (r *ListenerRegistry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.Key()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSubscription, h.Key())
	}
	r.handles[h.Key()] = h
	r.order = append(r.order, h.Key())
	return nil
}

// Get registered handle by key
func (r *ListenerRegistry) Get(key string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

// Release release and forget one handle, no-op for unknown keys
func (r *ListenerRegistry) Release(key string) error {
	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
		r.order = removeKey(r.order, key)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Release()
}

// ReleaseAll release every tracked handle in registration order and clear the registry
func (r *ListenerRegistry) ReleaseAll() error {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.order))
	for _, key := range r.order {
		handles = append(handles, r.handles[key])
	}
	r.handles = make(map[string]Handle)
	r.order = nil
	r.mu.Unlock()

	var errs error
	for _, h := range handles {
		errs = multierr.Append(errs, h.Release())
	}
	return errs
}

// Len number of live handles
func (r *ListenerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
