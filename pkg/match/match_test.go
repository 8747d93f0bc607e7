package match_test

import (
	"testing"

	"github.com/ethan/neon-realtime/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ts float64
	id string
}

func (s sample) TimestampUnixSeconds() float64 { return s.ts }

func TestCacheClosestReturnsMaxTimestampAtOrBeforeTarget(t *testing.T) {
	c := match.NewCache[sample](10)
	c.Append(sample{ts: 1.0, id: "a"})
	c.Append(sample{ts: 2.0, id: "b"})
	c.Append(sample{ts: 3.0, id: "c"})

	got, err := c.Closest(1.9)
	require.NoError(t, err)
	assert.Equal(t, "a", got.id)
}

func TestCacheClosestMatchesSpecExample(t *testing.T) {
	c := match.NewCache[sample](10)
	c.Append(sample{ts: 1.00, id: "A"})
	c.Append(sample{ts: 1.05, id: "B"})
	c.Append(sample{ts: 1.10, id: "C"})
	c.Append(sample{ts: 1.20, id: "D"})

	got, err := c.Closest(1.12)
	require.NoError(t, err)
	assert.Equal(t, "C", got.id)
}

func TestCacheClosestDropsExhaustedOlderEntries(t *testing.T) {
	c := match.NewCache[sample](10)
	c.Append(sample{ts: 1.0, id: "a"})
	c.Append(sample{ts: 2.0, id: "b"})
	c.Append(sample{ts: 3.0, id: "c"})

	_, err := c.Closest(2.5)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len(), "entries older than the match are dropped")
}

func TestCacheClosestReturnsLastWhenTargetBeyondAllEntries(t *testing.T) {
	c := match.NewCache[sample](10)
	c.Append(sample{ts: 1.0, id: "a"})
	c.Append(sample{ts: 2.0, id: "b"})

	got, err := c.Closest(100.0)
	require.NoError(t, err)
	assert.Equal(t, "b", got.id)
	assert.Equal(t, 0, c.Len())
}

func TestCacheClosestEmptyReturnsError(t *testing.T) {
	c := match.NewCache[sample](10)
	_, err := c.Closest(1.0)
	assert.ErrorAs(t, err, &match.ErrNoItems{})
}

func TestCacheEvictsOldestWhenOverCapacity(t *testing.T) {
	c := match.NewCache[sample](2)
	c.Append(sample{ts: 1.0, id: "a"})
	c.Append(sample{ts: 2.0, id: "b"})
	c.Append(sample{ts: 3.0, id: "c"})

	assert.Equal(t, 2, c.Len())
	got, err := c.Closest(0.0)
	require.NoError(t, err)
	assert.Equal(t, "b", got.id, "oldest entry was evicted")
}

func TestCacheClear(t *testing.T) {
	c := match.NewCache[sample](10)
	c.Append(sample{ts: 1.0, id: "a"})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestSceneMatcherRequiresGazeBeforeEyes(t *testing.T) {
	gaze := match.NewCache[sample](10)
	eyes := match.NewCache[sample](10)
	eyes.Append(sample{ts: 1.0, id: "eyes-a"})

	m := match.NewSceneMatcher[sample, sample, sample](gaze, eyes)
	_, _, haveGazeEyes, ok := m.Match(sample{ts: 1.0, id: "scene-a"})
	assert.False(t, ok, "no gaze cached, so no match at all")
	assert.False(t, haveGazeEyes)
}

func TestSceneMatcherMatchesGazeThenEyes(t *testing.T) {
	gaze := match.NewCache[sample](10)
	eyes := match.NewCache[sample](10)
	gaze.Append(sample{ts: 0.9, id: "gaze-a"})
	eyes.Append(sample{ts: 0.95, id: "eyes-a"})

	m := match.NewSceneMatcher[sample, sample, sample](gaze, eyes)
	gazeMatch, gazeEyesMatch, haveGazeEyes, ok := m.Match(sample{ts: 1.0, id: "scene-a"})
	require.True(t, ok)
	require.True(t, haveGazeEyes)
	assert.Equal(t, "gaze-a", gazeMatch.Gaze.id)
	assert.Equal(t, "eyes-a", gazeEyesMatch.Eyes.id)
}
