package auth

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nametagauth-go/internal/loop"
	"nametagauth-go/internal/store"
)

// tokenRecorder collects watch deliveries; deliveries arrive on the
// dispatch loop goroutine.
type tokenRecorder struct {
	mu  sync.Mutex
	got []*Token
}

func (r *tokenRecorder) fn(tok *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, tok)
}

func (r *tokenRecorder) snapshot() []*Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Token(nil), r.got...)
}

// kvOnly hides a store's change notifications, modelling a backend that
// cannot report external writes.
type kvOnly struct {
	store.KV
}

func TestWatchToken_InitialDeliveryNoSession(t *testing.T) {
	a, _ := newEngine(t, nil)
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	flushLoop(t, a)
	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestWatchToken_InitialDeliveryExistingSession(t *testing.T) {
	a, _ := newEngine(t, nil)
	seedToken(t, a, Token{IDToken: "idtok", Subject: "person-1"})
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	flushLoop(t, a)
	got := rec.snapshot()
	require.Len(t, got, 1)
	require.NotNil(t, got[0])
	assert.Equal(t, "person-1", got[0].Subject)
}

func TestWatchToken_OwnWriteDeliveredOnce(t *testing.T) {
	a, _ := newEngine(t, nil)
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()
	flushLoop(t, a)

	written, err := a.writeToken(&Token{IDToken: "idtok"}, a.currentGeneration())
	require.NoError(t, err)
	require.True(t, written)
	flushLoop(t, a)

	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, "idtok", got[1].IDToken)
}

func TestWatchToken_OwnWriteWithoutNotifier(t *testing.T) {
	a, _ := newEngine(t, func(_ *Options, deps *Deps) {
		deps.LongTerm = kvOnly{KV: store.NewMemoryStore()}
	})
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()
	flushLoop(t, a)

	written, err := a.writeToken(&Token{IDToken: "idtok"}, a.currentGeneration())
	require.NoError(t, err)
	require.True(t, written)
	flushLoop(t, a)

	// The engine falls back to notifying its own watchers directly, still
	// exactly once.
	got := rec.snapshot()
	require.Len(t, got, 2)
	require.NotNil(t, got[1])
	assert.Equal(t, "idtok", got[1].IDToken)
}

func TestWatchToken_ExternalWriterObserved(t *testing.T) {
	shared := store.NewMemoryStore()
	a, _ := newEngine(t, func(_ *Options, deps *Deps) {
		deps.LongTerm = shared
	})
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()
	flushLoop(t, a)

	// Another tab sharing the store writes a token.
	raw, err := json.Marshal(Token{IDToken: "idtok", Subject: "person-2"})
	require.NoError(t, err)
	require.NoError(t, shared.Set(TokenKey, string(raw)))
	flushLoop(t, a)

	got := rec.snapshot()
	require.Len(t, got, 2)
	require.NotNil(t, got[1])
	assert.Equal(t, "person-2", got[1].Subject)
}

func TestWatchToken_IgnoresUnrelatedKeys(t *testing.T) {
	shared := store.NewMemoryStore()
	a, _ := newEngine(t, func(_ *Options, deps *Deps) {
		deps.LongTerm = shared
	})
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()
	flushLoop(t, a)

	require.NoError(t, shared.Set("some_other_key", "value"))
	flushLoop(t, a)

	assert.Len(t, rec.snapshot(), 1)
}

func TestSignOut_NotifiesOnlyWhenSessionExisted(t *testing.T) {
	a, _ := newEngine(t, nil)
	seedToken(t, a, Token{IDToken: "idtok"})
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	defer sub.Close()
	flushLoop(t, a)

	require.NoError(t, a.SignOut())
	require.NoError(t, a.SignOut())
	flushLoop(t, a)

	// Initial delivery plus one removal; the second sign-out was a no-op.
	got := rec.snapshot()
	require.Len(t, got, 2)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])
}

func TestSubscription_Close(t *testing.T) {
	a, _ := newEngine(t, nil)
	rec := &tokenRecorder{}

	sub, err := a.WatchToken(rec.fn)
	require.NoError(t, err)
	flushLoop(t, a)

	sub.Close()
	sub.Close()

	a.mu.Lock()
	assert.Nil(t, a.storeCancel)
	a.mu.Unlock()

	written, err := a.writeToken(&Token{IDToken: "idtok"}, a.currentGeneration())
	require.NoError(t, err)
	require.True(t, written)
	flushLoop(t, a)

	assert.Len(t, rec.snapshot(), 1)
}

func TestWatchToken_StoppedLoopReportsDrop(t *testing.T) {
	l := loop.New()
	l.Start()
	l.Stop()

	var buf bytes.Buffer
	a, _ := newEngine(t, func(_ *Options, deps *Deps) {
		deps.Loop = l
		deps.Logger = log.New(&buf, "", 0)
	})

	sub, err := a.WatchToken(func(*Token) {})
	require.NoError(t, err)
	defer sub.Close()

	// The initial delivery could not be queued; that is reported, never
	// silent.
	assert.Contains(t, buf.String(), "dropping initial watch delivery")
}

func TestWatchToken_MultipleWatchers(t *testing.T) {
	a, _ := newEngine(t, nil)
	first := &tokenRecorder{}
	second := &tokenRecorder{}

	sub1, err := a.WatchToken(first.fn)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := a.WatchToken(second.fn)
	require.NoError(t, err)
	defer sub2.Close()
	flushLoop(t, a)

	written, err := a.writeToken(&Token{IDToken: "idtok"}, a.currentGeneration())
	require.NoError(t, err)
	require.True(t, written)
	flushLoop(t, a)

	assert.Len(t, first.snapshot(), 2)
	assert.Len(t, second.snapshot(), 2)
}
