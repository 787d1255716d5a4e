package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiryRecorder struct {
	mu    sync.Mutex
	pairs []string
}

func (r *expiryRecorder) record(sender, receiver string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, sender+">"+receiver)
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

const ttl = 2 * time.Second

func newTestTracker() (*Tracker, *clock.Mock, *expiryRecorder) {
	mock := clock.NewMock()
	rec := &expiryRecorder{}
	return NewTracker(mock, ttl, rec.record), mock, rec
}

func TestStartTransitions(t *testing.T) {
	tracker, _, _ := newTestTracker()

	assert.True(t, tracker.Start("a", "b"), "first start is the none->active transition")
	assert.False(t, tracker.Start("a", "b"), "repeat start only refreshes")
	assert.True(t, tracker.Active("a", "b"))

	// The ordered pair is the key: the reverse direction is independent.
	assert.True(t, tracker.Start("b", "a"))
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	tracker, mock, rec := newTestTracker()

	tracker.Start("a", "b")

	mock.Add(ttl - time.Millisecond)
	assert.Equal(t, 0, rec.count())

	mock.Add(time.Millisecond)
	require.Equal(t, 1, rec.count())
	assert.False(t, tracker.Active("a", "b"))

	// Nothing more fires, no matter how long we wait.
	mock.Add(10 * ttl)
	assert.Equal(t, 1, rec.count())
}

func TestRefreshExtendsDeadline(t *testing.T) {
	tracker, mock, rec := newTestTracker()

	tracker.Start("a", "b")
	mock.Add(ttl - 100*time.Millisecond)

	tracker.Start("a", "b") // keystroke refresh

	mock.Add(200 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "refresh must push the deadline out")
	assert.True(t, tracker.Active("a", "b"))

	mock.Add(ttl)
	assert.Equal(t, 1, rec.count())
}

func TestStopCancelsExpiry(t *testing.T) {
	tracker, mock, rec := newTestTracker()

	tracker.Start("a", "b")
	assert.True(t, tracker.Stop("a", "b"))
	assert.False(t, tracker.Stop("a", "b"), "second stop finds nothing")

	mock.Add(10 * ttl)
	assert.Equal(t, 0, rec.count(), "explicit stop suppresses the expiry callback")
}

func TestRestartAfterExpiry(t *testing.T) {
	tracker, mock, rec := newTestTracker()

	tracker.Start("a", "b")
	mock.Add(ttl)
	require.Equal(t, 1, rec.count())

	assert.True(t, tracker.Start("a", "b"), "a fresh activation after expiry begins again")
	mock.Add(ttl)
	assert.Equal(t, 2, rec.count())
}
