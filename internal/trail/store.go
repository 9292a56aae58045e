// Package trail holds the client-side ephemeral canvas state: per-peer
// point buffers with time-based decay, latest cursor samples, and the
// proximity scan that feeds the decorative contact effects.
package trail

import (
	"math"
	"sync"
	"time"

	"github.com/Rosalva003/lighttrails/internal/protocol"
)

const (
	// DefaultFadeDuration is how long a point stays on the canvas.
	DefaultFadeDuration = 4 * time.Second

	// DefaultMinOpacity prunes points the eye can no longer see. It must
	// stay below the decay curve's value in the final millisecond of the
	// fade, so age is always the bound that removes a point.
	DefaultMinOpacity = 0.0001

	// DefaultMaxTrailPoints caps memory per peer regardless of decay.
	DefaultMaxTrailPoints = 120

	// DefaultCursorTTL evicts cursors of peers that went silent without a
	// clientLeft event. Shorter than the fade so stale cursors disappear
	// before their trails do.
	DefaultCursorTTL = 2 * time.Second

	// DefaultMinSpacing is the minimum distance between two locally drawn
	// points; anything closer is rejected at creation time.
	DefaultMinSpacing = 4.0
)

// Point is one timestamped trail sample. Immutable once created.
type Point struct {
	X, Y      float64
	Color     string
	Size      float64
	Glow      float64
	Timestamp time.Time
}

// Cursor is the latest cursor sample for one peer; overwritten, never
// appended.
type Cursor struct {
	X, Y     float64
	Settings protocol.Settings
	Seen     time.Time
}

// Config tunes the store. Zero fields fall back to the defaults above.
type Config struct {
	FadeDuration   time.Duration
	MinOpacity     float64
	MaxTrailPoints int
	CursorTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.FadeDuration <= 0 {
		c.FadeDuration = DefaultFadeDuration
	}
	if c.MinOpacity <= 0 {
		c.MinOpacity = DefaultMinOpacity
	}
	if c.MaxTrailPoints <= 0 {
		c.MaxTrailPoints = DefaultMaxTrailPoints
	}
	if c.CursorTTL <= 0 {
		c.CursorTTL = DefaultCursorTTL
	}
	return c
}

// Store owns every remote identity's trail and cursor. Safe for use from
// the socket goroutine and the frame loop concurrently; each operation is
// O(points of one identity) at worst, so ingesting a message never rescans
// unrelated peers.
type Store struct {
	cfg Config

	mu      sync.Mutex
	trails  map[string][]Point
	cursors map[string]Cursor
}

func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg.withDefaults(),
		trails:  make(map[string][]Point),
		cursors: make(map[string]Cursor),
	}
}

// Add appends a point to the identity's trail, dropping from the front once
// the bounded buffer is full.
func (s *Store) Add(identity string, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pts := append(s.trails[identity], p)
	if over := len(pts) - s.cfg.MaxTrailPoints; over > 0 {
		pts = pts[over:]
	}
	s.trails[identity] = pts
}

// SetCursor overwrites the identity's cursor sample.
func (s *Store) SetCursor(identity string, x, y float64, settings protocol.Settings, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[identity] = Cursor{X: x, Y: y, Settings: settings, Seen: now}
}

// Drop removes everything owned by a departed identity.
func (s *Store) Drop(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.trails, identity)
	delete(s.cursors, identity)
}

// Clear wipes every trail but keeps cursors; a canvas wipe does not mean
// the peers went away.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trails = make(map[string][]Point)
}

// Tick ages out trail points and stale cursors. A trail left empty is
// deleted outright, so an identity with no visible points costs nothing.
func (s *Store) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, pts := range s.trails {
		dst := pts[:0]
		for _, p := range pts {
			age := now.Sub(p.Timestamp)
			if age >= s.cfg.FadeDuration {
				continue
			}
			if Opacity(age, s.cfg.FadeDuration) <= s.cfg.MinOpacity {
				continue
			}
			dst = append(dst, p)
		}
		if len(dst) == 0 {
			delete(s.trails, id)
			continue
		}
		s.trails[id] = dst
	}

	for id, c := range s.cursors {
		if now.Sub(c.Seen) >= s.cfg.CursorTTL {
			delete(s.cursors, id)
		}
	}
}

// Trail returns a copy of the identity's points, oldest first.
func (s *Store) Trail(identity string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	pts := s.trails[identity]
	if len(pts) == 0 {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Identities lists every identity currently holding trail points.
func (s *Store) Identities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.trails))
	for id := range s.trails {
		ids = append(ids, id)
	}
	return ids
}

// Cursor returns the identity's latest cursor sample, if one is live.
func (s *Store) Cursor(identity string) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[identity]
	return c, ok
}

// Cursors returns a copy of all live cursor samples keyed by identity.
func (s *Store) Cursors() map[string]Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Cursor, len(s.cursors))
	for id, c := range s.cursors {
		out[id] = c
	}
	return out
}

// Opacity is the shared ease-out decay curve: 1 - (age/fade)^2, clamped to
// [0,1]. The renderer uses the same curve so pruning and painting agree.
func Opacity(age, fade time.Duration) float64 {
	if fade <= 0 {
		return 0
	}
	r := float64(age) / float64(fade)
	o := 1 - r*r
	if o < 0 {
		return 0
	}
	if o > 1 {
		return 1
	}
	return o
}

// SpacingGate enforces the minimum distance between consecutive locally
// drawn points. Not safe for concurrent use; each input stream owns one.
type SpacingGate struct {
	minSpacing float64
	lastX      float64
	lastY      float64
	primed     bool
}

func NewSpacingGate(minSpacing float64) *SpacingGate {
	if minSpacing <= 0 {
		minSpacing = DefaultMinSpacing
	}
	return &SpacingGate{minSpacing: minSpacing}
}

// Accept reports whether a point at (x, y) is far enough from the previous
// accepted point to be emitted. Rejected points leave the gate unchanged.
func (g *SpacingGate) Accept(x, y float64) bool {
	if g.primed && math.Hypot(x-g.lastX, y-g.lastY) <= g.minSpacing {
		return false
	}
	g.lastX, g.lastY = x, y
	g.primed = true
	return true
}

// Reset forgets the previous point, e.g. when the pointer lifts.
func (g *SpacingGate) Reset() {
	g.primed = false
}
