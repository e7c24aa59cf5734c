// Package presence infers device liveness purely from timestamps; there is no
// socket or session state anywhere in the gateway.
package presence

import (
	"time"

	"sprout/internal/models"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type State string

const (
	StateLive    State = "live"
	StateRecent  State = "recent"
	StateStale   State = "stale"
	StateOffline State = "offline"
)

// Thresholds — bucket boundaries. live < Live, recent < Recent, stale < Stale.
type Thresholds struct {
	Live   time.Duration
	Recent time.Duration
	Stale  time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Live:   60 * time.Second,
		Recent: 300 * time.Second,
		Stale:  900 * time.Second,
	}
}

// Classify is pure: no reads, no writes. A device that has never been seen is
// offline.
func Classify(lastSeen *time.Time, now time.Time, th Thresholds) State {
	if lastSeen == nil {
		return StateOffline
	}
	age := now.Sub(*lastSeen)
	switch {
	case age < th.Live:
		return StateLive
	case age < th.Recent:
		return StateRecent
	case age < th.Stale:
		return StateStale
	default:
		return StateOffline
	}
}

// Tracker keeps a per-process last-touch cache on top of the stored last_seen,
// so hot paths (the enqueue online hint) skip a device read when the device
// talked to this instance recently. The store remains authoritative; other
// gateway instances see their own traffic.
type Tracker struct {
	th    Thresholds
	touch cmap.ConcurrentMap[string, time.Time]
}

func NewTracker(th Thresholds) *Tracker {
	return &Tracker{th: th, touch: cmap.New[time.Time]()}
}

func (t *Tracker) Thresholds() Thresholds { return t.th }

// Touch records local traffic from a device (ingest or heartbeat).
func (t *Tracker) Touch(deviceID string, at time.Time) {
	t.touch.Set(deviceID, at)
}

// StateOf classifies using the freshest of the cached touch and the stored
// last_seen.
func (t *Tracker) StateOf(dev *models.Device, now time.Time) State {
	last := dev.LastSeen
	if cached, ok := t.touch.Get(dev.UUID); ok {
		if last == nil || cached.After(*last) {
			last = &cached
		}
	}
	return Classify(last, now, t.th)
}

// OnlineHint — the non-authoritative snapshot stored on enqueued commands.
func (t *Tracker) OnlineHint(dev *models.Device, now time.Time) bool {
	return t.StateOf(dev, now) == StateLive
}
