// Package match implements the cross-stream timestamp matching core
// (C7): a bounded per-sensor cache plus a closest-match lookup used to
// pair world-camera frames with the nearest-in-time gaze sample (and,
// transitively, eye-camera frames).
package match

import "sync"

// Timestamped is satisfied by any decoded sample carrying a wallclock
// timestamp in Unix seconds.
type Timestamped interface {
	TimestampUnixSeconds() float64
}

type entry[T Timestamped] struct {
	ts   float64
	item T
}

// Cache is a bounded, FIFO-eviction ring of timestamped samples for one
// sensor, used as the right-hand side of a closest-match lookup.
//
// Items are assumed to arrive in monotonically increasing timestamp
// order, matching the guarantee RTSP/RTCP timestamping provides.
type Cache[T Timestamped] struct {
	mu       sync.Mutex
	items    []entry[T]
	capacity int
}

// NewCache returns a Cache holding at most capacity items; once full,
// appending evicts the oldest entry.
func NewCache[T Timestamped](capacity int) *Cache[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache[T]{capacity: capacity}
}

// Append adds item, evicting the oldest entry if the cache is full.
func (c *Cache[T]) Append(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, entry[T]{ts: item.TimestampUnixSeconds(), item: item})
	if len(c.items) > c.capacity {
		c.items = c.items[len(c.items)-c.capacity:]
	}
}

// Clear empties the cache, e.g. when a stream reconnects and stale
// samples would otherwise be matched against a fresh scene frame.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// Len reports the number of cached items.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ErrNoItems is returned by Closest when the cache is empty.
type ErrNoItems struct{}

func (ErrNoItems) Error() string { return "match: no cached items available" }

// Closest returns the item whose timestamp is maximal among those ≤
// timestamp, or the head item if every cached item overshoots. Entries
// older than the match are consumed and discarded, so repeated calls
// with increasing timestamps run in amortized O(1); the overshoot item
// (if any) is retained as the new cache head rather than discarded,
// since it may still be the answer for a later, larger target.
func (c *Cache[T]) Closest(timestamp float64) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if len(c.items) == 0 {
		return zero, ErrNoItems{}
	}

	if c.items[0].ts > timestamp {
		return c.items[0].item, nil
	}

	best := c.items[0]
	rest := c.items[1:]
	for len(rest) > 0 && rest[0].ts <= timestamp {
		best = rest[0]
		rest = rest[1:]
	}
	c.items = rest
	return best.item, nil
}

// MatchedGazeScene pairs a world-camera frame with its closest gaze
// sample.
type MatchedGazeScene[Scene, Gaze Timestamped] struct {
	Scene Scene
	Gaze  Gaze
}

// MatchedGazeEyesScene additionally pairs in the closest eye-camera
// frame, only populated once a gaze match already succeeded.
type MatchedGazeEyesScene[Scene, Gaze, Eyes Timestamped] struct {
	Scene Scene
	Eyes  Eyes
	Gaze  Gaze
}

// SceneMatcher matches incoming world-camera frames against cached gaze
// and eye-camera samples, in the priority order the reference
// implementation uses: a scene frame only gets an eyes match if it
// already matched a gaze sample, since eyes video never streams without
// accompanying gaze data.
type SceneMatcher[Scene, Gaze, Eyes Timestamped] struct {
	GazeCache *Cache[Gaze]
	EyesCache *Cache[Eyes]
}

// NewSceneMatcher returns a SceneMatcher backed by the given caches.
func NewSceneMatcher[Scene, Gaze, Eyes Timestamped](gazeCache *Cache[Gaze], eyesCache *Cache[Eyes]) *SceneMatcher[Scene, Gaze, Eyes] {
	return &SceneMatcher[Scene, Gaze, Eyes]{GazeCache: gazeCache, EyesCache: eyesCache}
}

// Match attempts to pair scene with the closest cached gaze sample, and
// -- only if that succeeds -- the closest cached eyes frame. ok is false
// if no gaze sample was available to match against.
func (m *SceneMatcher[Scene, Gaze, Eyes]) Match(scene Scene) (gazeMatch MatchedGazeScene[Scene, Gaze], gazeEyesMatch MatchedGazeEyesScene[Scene, Gaze, Eyes], haveGazeEyes bool, ok bool) {
	gaze, err := m.GazeCache.Closest(scene.TimestampUnixSeconds())
	if err != nil {
		return MatchedGazeScene[Scene, Gaze]{}, MatchedGazeEyesScene[Scene, Gaze, Eyes]{}, false, false
	}
	gazeMatch = MatchedGazeScene[Scene, Gaze]{Scene: scene, Gaze: gaze}

	eyes, err := m.EyesCache.Closest(scene.TimestampUnixSeconds())
	if err != nil {
		return gazeMatch, MatchedGazeEyesScene[Scene, Gaze, Eyes]{}, false, true
	}
	gazeEyesMatch = MatchedGazeEyesScene[Scene, Gaze, Eyes]{Scene: scene, Eyes: eyes, Gaze: gaze}
	return gazeMatch, gazeEyesMatch, true, true
}
