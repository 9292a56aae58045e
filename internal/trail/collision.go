package trail

import (
	"math"
	"time"
)

const (
	// DefaultContactWindow bounds how recent a foreign point must be to
	// count as a contact. Deliberately much shorter than the fade duration;
	// two strokes only "touch" if they happen nearly together.
	DefaultContactWindow = 150 * time.Millisecond

	// DefaultContactThreshold is the proximity distance in canvas units.
	DefaultContactThreshold = 24.0
)

// Contact describes two identities whose strokes just met. Consumed by the
// decorative layer only; emitting one never mutates store state.
type Contact struct {
	A, B   string
	ColorA string
	ColorB string
	X, Y   float64
}

// ContactFunc receives advisory contact signals.
type ContactFunc func(Contact)

// Detector cross-references the freshest segment of one identity against
// other identities' recent points.
type Detector struct {
	store     *Store
	window    time.Duration
	threshold float64
	onContact ContactFunc
}

// NewDetector wires a detector to a store. Zero window/threshold use the
// defaults.
func NewDetector(store *Store, window time.Duration, threshold float64, fn ContactFunc) *Detector {
	if window <= 0 {
		window = DefaultContactWindow
	}
	if threshold <= 0 {
		threshold = DefaultContactThreshold
	}
	return &Detector{
		store:     store,
		window:    window,
		threshold: threshold,
		onContact: fn,
	}
}

// Scan examines the segment formed by the two most recent points of the
// given identity against every other identity's points inside the recent
// window, firing at most one contact per foreign identity. Run it from the
// frame loop right after the identity received a new point.
func (d *Detector) Scan(identity string, now time.Time) {
	if d.onContact == nil {
		return
	}

	seg := d.store.Trail(identity)
	if len(seg) < 2 {
		return
	}
	a := seg[len(seg)-1]
	b := seg[len(seg)-2]

	for _, other := range d.store.Identities() {
		if other == identity {
			continue
		}
		for _, p := range d.store.Trail(other) {
			if now.Sub(p.Timestamp) > d.window {
				continue
			}
			dist := math.Min(
				math.Hypot(p.X-a.X, p.Y-a.Y),
				math.Hypot(p.X-b.X, p.Y-b.Y),
			)
			if dist < d.threshold {
				d.onContact(Contact{
					A:      identity,
					B:      other,
					ColorA: a.Color,
					ColorB: p.Color,
					X:      (a.X + p.X) / 2,
					Y:      (a.Y + p.Y) / 2,
				})
				break
			}
		}
	}
}
