package feature

import (
	"math"
	"math/cmplx"
)

// fft computes the radix-2 Cooley-Tukey FFT. The input length must be
// a power of 2.
func fft(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		out := make([]complex128, n)
		copy(out, x)
		return out
	}

	bits := 0
	for v := n; v > 1; v >>= 1 {
		bits++
	}
	result := make([]complex128, n)
	for i := 0; i < n; i++ {
		result[bitReverse(i, bits)] = x[i]
	}

	for size := 2; size <= n; size *= 2 {
		half := size / 2
		w := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			wn := complex(1, 0)
			for k := 0; k < half; k++ {
				u := result[start+k]
				t := wn * result[start+k+half]
				result[start+k] = u + t
				result[start+k+half] = u - t
				wn *= w
			}
		}
	}
	return result
}

func bitReverse(x, bits int) int {
	var out int
	for i := 0; i < bits; i++ {
		out = (out << 1) | (x & 1)
		x >>= 1
	}
	return out
}
