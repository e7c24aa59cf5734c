package presence

import (
	"testing"
	"time"

	"sprout/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBuckets(t *testing.T) {
	th := DefaultThresholds()
	now := time.Now()

	cases := []struct {
		age  time.Duration
		want State
	}{
		{0, StateLive},
		{59 * time.Second, StateLive},
		{60 * time.Second, StateRecent},
		{299 * time.Second, StateRecent},
		{300 * time.Second, StateStale},
		{899 * time.Second, StateStale},
		{900 * time.Second, StateOffline},
		{24 * time.Hour, StateOffline},
	}
	for _, c := range cases {
		seen := now.Add(-c.age)
		assert.Equal(t, c.want, Classify(&seen, now, th), "age=%s", c.age)
	}
}

func TestClassifyNeverSeen(t *testing.T) {
	assert.Equal(t, StateOffline, Classify(nil, time.Now(), DefaultThresholds()))
}

func TestTrackerPrefersFreshestTimestamp(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	now := time.Now()

	stale := now.Add(-time.Hour)
	dev := &models.Device{UUID: "dev-1", LastSeen: &stale}
	assert.Equal(t, StateOffline, tr.StateOf(dev, now))

	// local traffic overrides a stale stored last_seen
	tr.Touch("dev-1", now.Add(-10*time.Second))
	assert.Equal(t, StateLive, tr.StateOf(dev, now))
	assert.True(t, tr.OnlineHint(dev, now))

	// a fresher stored last_seen wins over an old cached touch
	fresh := now.Add(-5 * time.Second)
	tr.Touch("dev-2", now.Add(-time.Hour))
	dev2 := &models.Device{UUID: "dev-2", LastSeen: &fresh}
	assert.Equal(t, StateLive, tr.StateOf(dev2, now))
}

func TestOnlineHintOnlyWhenLive(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	now := time.Now()
	recent := now.Add(-2 * time.Minute)
	dev := &models.Device{UUID: "dev-3", LastSeen: &recent}
	assert.Equal(t, StateRecent, tr.StateOf(dev, now))
	assert.False(t, tr.OnlineHint(dev, now))
}
