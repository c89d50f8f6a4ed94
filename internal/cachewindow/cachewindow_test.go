package cachewindow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectGrowingHistory(t *testing.T) {
	var markers []int
	want := [][]int{
		{0},
		{0, 1},
		{0, 1, 2},
		{1, 2, 3},
		{2, 3, 4},
	}
	for turn, expected := range want {
		markers = Select(turn+1, markers, DefaultWindow, DefaultBreakpoints)
		assert.Equal(t, expected, markers, "turn %d", turn+1)
	}
}

func TestSelectDropsMarkersOutsideWindow(t *testing.T) {
	got := Select(10, []int{2, 6, 8}, 4, 3)
	assert.Equal(t, []int{6, 8, 9}, got)
}

func TestSelectIgnoresBogusPrevious(t *testing.T) {
	got := Select(3, []int{-1, 7, 1, 1}, 20, 3)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSelectDegenerate(t *testing.T) {
	assert.Nil(t, Select(0, nil, 20, 3))
	assert.Nil(t, Select(5, nil, 0, 3))
	assert.Nil(t, Select(5, nil, 20, 0))
	assert.Equal(t, []int{4}, Select(5, []int{0, 1, 2}, 20, 1))
}

func TestSelectProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 500; n++ {
		window := 1 + rng.Intn(25)
		limit := 1 + rng.Intn(5)
		var markers []int
		length := 1 + rng.Intn(60)
		for count := 1; count <= length; count++ {
			prev := markers
			markers = Select(count, prev, window, limit)

			require.LessOrEqual(t, len(markers), limit)
			require.NotEmpty(t, markers)
			assert.Equal(t, count-1, markers[len(markers)-1], "newest entry is always marked")
			for i, m := range markers {
				assert.GreaterOrEqual(t, m, count-window, "marker outside window")
				assert.Less(t, m, count)
				if i > 0 {
					assert.Less(t, markers[i-1], m, "markers must be strictly ascending")
				}
			}
			// Every dropped previous marker is older than every kept one.
			for _, p := range prev {
				if !Marked(markers, p) {
					assert.Less(t, p, markers[0])
				}
			}
		}
	}
}
