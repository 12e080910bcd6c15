package host

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradientAt(t *testing.T) {
	sky := color.NRGBA{R: 14, G: 165, B: 233, A: 178}
	purple := color.NRGBA{R: 168, G: 85, B: 247, A: 178}
	g := Gradient{X0: 0, X1: 100, Stops: []ColorStop{{0, sky}, {1, purple}}}

	assert.Equal(t, sky, g.At(-5))
	assert.Equal(t, sky, g.At(0))
	assert.Equal(t, purple, g.At(100))
	assert.Equal(t, purple, g.At(250))

	mid := g.At(50)
	assert.Equal(t, uint8(91), mid.R)
	assert.Equal(t, uint8(125), mid.G)
	assert.Equal(t, uint8(240), mid.B)
}

func TestGradientDegenerate(t *testing.T) {
	assert.Equal(t, color.NRGBA{}, Gradient{}.At(3))

	c := color.NRGBA{R: 1, A: 255}
	g := Gradient{X0: 10, X1: 10, Stops: []ColorStop{{0, c}}}
	assert.Equal(t, c, g.At(10))
}
