package auth

import (
	"encoding/json"

	"github.com/google/uuid"

	"nametagauth-go/internal/metrics"
	"nametagauth-go/internal/store"
)

// WatchFunc receives the current token, or nil when there is no session.
type WatchFunc func(tok *Token)

// Subscription is a registered token watch. Close removes the callback
// and detaches the store listener once no subscriber needs it.
type Subscription struct {
	id string
	a  *Auth
}

// Close cancels the subscription. Closing twice is harmless.
func (s *Subscription) Close() {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	delete(s.a.watches, s.id)
	if len(s.a.watches) == 0 && s.a.storeCancel != nil {
		s.a.storeCancel()
		s.a.storeCancel = nil
	}
}

// WatchToken registers fn to observe the session token: once,
// asynchronously, with the current value right after registration, and
// again whenever the stored token changes, including writes performed by
// another tab or process sharing the long-term store (when that store can
// report external changes).
func (a *Auth) WatchToken(fn WatchFunc) (*Subscription, error) {
	if !a.opts.PKCE {
		return nil, ErrPKCEDisabled
	}

	a.mu.Lock()
	id := uuid.NewString()
	a.watches[id] = fn
	if a.storeCancel == nil {
		if n, ok := a.longTerm.(store.Notifier); ok {
			a.storeCancel = n.Subscribe(a.onStoreChange)
		}
	}
	a.mu.Unlock()

	// Deferred initial delivery: the subscriber observes registration
	// completing before the first notification arrives.
	posted := a.loop.Post(func() {
		fn(a.readToken())
		metrics.WatchNotifications.Inc()
	})
	if !posted {
		a.logger.Printf("dropping initial watch delivery, dispatch queue unavailable")
		metrics.DroppedPosts.Inc()
	}

	return &Subscription{id: id, a: a}, nil
}

// onStoreChange reacts to long-term store mutations, from this engine or
// any other writer sharing the store.
func (a *Auth) onStoreChange(c store.Change) {
	if c.Key != TokenKey {
		return
	}
	var tok *Token
	if !c.Removed {
		var t Token
		if err := json.Unmarshal([]byte(c.Value), &t); err == nil {
			tok = &t
		}
	}
	a.broadcast(tok)
}

// broadcastOwnWrite notifies watchers after a token write performed by
// this engine, unless a store listener is attached; then the store's own
// change notification delivers it, exactly once.
func (a *Auth) broadcastOwnWrite(tok *Token) {
	a.mu.Lock()
	attached := a.storeCancel != nil
	a.mu.Unlock()
	if attached {
		return
	}
	a.broadcast(tok)
}

// broadcast posts one delivery of tok to every active watcher.
func (a *Auth) broadcast(tok *Token) {
	a.mu.Lock()
	fns := make([]WatchFunc, 0, len(a.watches))
	for _, fn := range a.watches {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn := fn
		posted := a.loop.Post(func() {
			fn(tok)
			metrics.WatchNotifications.Inc()
		})
		if !posted {
			a.logger.Printf("dropping watch notification, dispatch queue unavailable")
			metrics.DroppedPosts.Inc()
		}
	}
}
