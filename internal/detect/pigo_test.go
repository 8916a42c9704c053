package detect

import (
	"testing"

	"github.com/andresmejia3/gaze/internal/geometry"
	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
)

func TestBoxes(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 50, Col: 40, Scale: 20, Q: 6},
		{Row: 100, Col: 100, Scale: 60, Q: 12.5},
		{Row: 10, Col: 10, Scale: 10, Q: 1},
	}

	got := boxes(dets, 5)
	assert.Equal(t, []geometry.Box{
		{X: 70, Y: 70, W: 60, H: 60},
		{X: 30, Y: 40, W: 20, H: 20},
	}, got)
}

func TestBoxesEmpty(t *testing.T) {
	assert.Empty(t, boxes(nil, 5))
}
