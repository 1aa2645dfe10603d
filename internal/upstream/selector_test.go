package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelector(t *testing.T) {
	s, err := NewSelector("")
	require.NoError(t, err)
	assert.Equal(t, "round_robin", s.Name())

	s, err = NewSelector("random")
	require.NoError(t, err)
	assert.Equal(t, "random", s.Name())

	_, err = NewSelector("sticky")
	assert.Error(t, err)
}

func TestRoundRobinCycles(t *testing.T) {
	rr := NewRoundRobin()
	endpoints := []string{"a", "b", "c"}

	picks := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		picks = append(picks, rr.Next(endpoints))
	}

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picks)
}

func TestRoundRobinEmpty(t *testing.T) {
	rr := NewRoundRobin()
	assert.Equal(t, "", rr.Next(nil))
}

func TestRandomPicksFromSet(t *testing.T) {
	r := NewRandom()
	endpoints := []string{"a", "b"}

	for i := 0; i < 20; i++ {
		assert.Contains(t, endpoints, r.Next(endpoints))
	}

	assert.Equal(t, "", r.Next(nil))
}
