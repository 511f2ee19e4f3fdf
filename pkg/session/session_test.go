package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// fakeClock steps time manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	m := NewManager(cfg)
	t.Cleanup(m.Destroy)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clock.Now)
	return m, clock
}

func TestEviction_OldestUpdatedGoesFirst(t *testing.T) {
	m, clock := newTestManager(t, Config{MaxSessions: 2, SessionTimeout: 60 * time.Second})

	s1 := m.Create(CreateOptions{Name: "S1"}) // t=0
	clock.Advance(time.Second)
	s2 := m.Create(CreateOptions{Name: "S2"}) // t=1
	clock.Advance(time.Second)
	m.Touch(s1) // t=2
	clock.Advance(time.Second)
	s3 := m.Create(CreateOptions{Name: "S3"}) // t=3, evicts S2

	listed := m.List()
	require.Len(t, listed, 2)
	assert.Equal(t, s3.ID, listed[0].ID)
	assert.Equal(t, s1.ID, listed[1].ID)

	_, err := m.Get(s2.ID)
	assert.True(t, auierr.IsKind(err, auierr.NotFound))
}

func TestGet_ExpiredSessionRemovedOnAccess(t *testing.T) {
	m, clock := newTestManager(t, Config{SessionTimeout: 10 * time.Second})

	s := m.Create(CreateOptions{})
	clock.Advance(11 * time.Second)

	_, err := m.Get(s.ID)
	assert.True(t, auierr.IsKind(err, auierr.NotFound))
	assert.Equal(t, 0, m.Count())
}

func TestTouch_ExtendsExpiry(t *testing.T) {
	m, clock := newTestManager(t, Config{SessionTimeout: 10 * time.Second})

	s := m.Create(CreateOptions{})
	clock.Advance(9 * time.Second)
	m.Touch(s)
	clock.Advance(9 * time.Second)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, got.ExpiresAt.After(clock.Now()))
	assert.False(t, got.UpdatedAt.After(got.ExpiresAt))
}

func TestList_ExcludesExpired(t *testing.T) {
	m, clock := newTestManager(t, Config{SessionTimeout: 10 * time.Second})

	m.Create(CreateOptions{})
	clock.Advance(5 * time.Second)
	fresh := m.Create(CreateOptions{})
	clock.Advance(6 * time.Second) // first session is now expired

	listed := m.List()
	require.Len(t, listed, 1)
	assert.Equal(t, fresh.ID, listed[0].ID)
	for _, s := range listed {
		assert.True(t, s.ExpiresAt.After(clock.Now()))
	}
}

func TestCleanup_RemovesAllExpired(t *testing.T) {
	m, clock := newTestManager(t, Config{SessionTimeout: 10 * time.Second})

	m.Create(CreateOptions{})
	m.Create(CreateOptions{})
	clock.Advance(11 * time.Second)
	survivor := m.Create(CreateOptions{})

	removed := m.Cleanup()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, got.ID)
}

func TestCapacityInvariant(t *testing.T) {
	m, clock := newTestManager(t, Config{MaxSessions: 5, SessionTimeout: time.Hour})

	for i := 0; i < 20; i++ {
		m.Create(CreateOptions{})
		clock.Advance(time.Millisecond)
		assert.LessOrEqual(t, m.Count(), 5)
	}
}

func TestRehydrate_KeepsSessionID(t *testing.T) {
	m, _ := newTestManager(t, Config{SessionTimeout: time.Minute})

	restored := &Session{
		ID:             "restored-id",
		UserID:         "u1",
		Name:           "old session",
		CommandHistory: []string{"load | save"},
		CommandCount:   1,
	}
	require.NoError(t, m.Rehydrate(restored))

	got, err := m.Get("restored-id")
	require.NoError(t, err)
	assert.Same(t, restored, got)
	assert.Equal(t, 1, got.CommandCount)
	assert.NotNil(t, got.Buffers)
	assert.NotNil(t, got.Variables)
	assert.True(t, got.ExpiresAt.After(got.UpdatedAt.Add(-time.Second)))

	// Rehydrating again replaces in place, it never duplicates.
	require.NoError(t, m.Rehydrate(restored))
	assert.Equal(t, 1, m.Count())

	assert.Error(t, m.Rehydrate(&Session{}))
}

func TestRehydrate_EvictsAtCapacity(t *testing.T) {
	m, clock := newTestManager(t, Config{MaxSessions: 2, SessionTimeout: time.Hour})

	oldest := m.Create(CreateOptions{})
	clock.Advance(time.Second)
	m.Create(CreateOptions{})
	clock.Advance(time.Second)

	require.NoError(t, m.Rehydrate(&Session{ID: "restored"}))
	assert.Equal(t, 2, m.Count())
	_, err := m.Get(oldest.ID)
	assert.True(t, auierr.IsKind(err, auierr.NotFound))
}

func TestCountListener(t *testing.T) {
	m, clock := newTestManager(t, Config{SessionTimeout: 10 * time.Second})

	var observed []int
	m.SetCountListener(func(n int) { observed = append(observed, n) })

	s := m.Create(CreateOptions{})
	m.Create(CreateOptions{})
	require.NoError(t, m.Delete(s.ID))
	clock.Advance(11 * time.Second)
	m.Cleanup()

	assert.Equal(t, []int{0, 1, 2, 1, 0}, observed)
}

func TestDestroy_ClearsSessions(t *testing.T) {
	m := NewManager(Config{})
	m.Create(CreateOptions{})
	m.Destroy()
	assert.Equal(t, 0, m.Count())
}
