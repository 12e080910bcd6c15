package headless

import (
	"math"
	"math/cmplx"
)

// Byte mapping and smoothing defaults of a browser analyser node.
const (
	minDecibels        = -100.0
	maxDecibels        = -30.0
	smoothingTimeConst = 0.8
)

// spectrum turns time-domain windows into smoothed byte magnitudes.
type spectrum struct {
	size     int
	window   []float64
	smoothed []float64
	scratch  []complex128
}

func newSpectrum(size int) *spectrum {
	s := &spectrum{
		size:     size,
		window:   make([]float64, size),
		smoothed: make([]float64, size/2),
		scratch:  make([]complex128, size),
	}
	// Blackman window, alpha = 0.16.
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range s.window {
		x := 2 * math.Pi * float64(i) / float64(size)
		s.window[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return s
}

// bytes analyses samples (len == size) and writes one byte per bin into dst.
func (s *spectrum) bytes(samples []float64, dst []byte) {
	for i := range s.scratch {
		s.scratch[i] = complex(samples[i]*s.window[i], 0)
	}
	fft(s.scratch)

	scale := 255 / (maxDecibels - minDecibels)
	for k := range s.smoothed {
		mag := cmplx.Abs(s.scratch[k]) / float64(s.size)
		s.smoothed[k] = smoothingTimeConst*s.smoothed[k] + (1-smoothingTimeConst)*mag
		if k >= len(dst) {
			continue
		}
		db := minDecibels
		if s.smoothed[k] > 0 {
			db = 20 * math.Log10(s.smoothed[k])
		}
		v := scale * (db - minDecibels)
		switch {
		case v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
}

// fft is an in-place iterative radix-2 transform; len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := x[start+k]
				v := x[start+k+size/2] * w
				x[start+k] = u + v
				x[start+k+size/2] = u - v
				w *= step
			}
		}
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
