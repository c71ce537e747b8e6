package feature

import "math"

// melFilterbank is a bank of triangular mel-spaced filters over FFT
// power bins.
type melFilterbank struct {
	filters [][]float64
}

func newMelFilterbank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) *melFilterbank {
	nBins := fftSize/2 + 1
	if highFreq <= 0 || highFreq > float64(sampleRate)/2 {
		highFreq = float64(sampleRate) / 2
	}
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	points := make([]int, numFilters+2)
	step := (highMel - lowMel) / float64(numFilters+1)
	for i := range points {
		freq := melToHz(lowMel + float64(i)*step)
		points[i] = int(math.Floor(freq * float64(fftSize+1) / float64(sampleRate)))
	}

	filters := make([][]float64, numFilters)
	for i := 0; i < numFilters; i++ {
		filters[i] = make([]float64, nBins)
		left, center, right := points[i], points[i+1], points[i+2]
		for j := left; j < center && j < nBins; j++ {
			if center != left {
				filters[i][j] = float64(j-left) / float64(center-left)
			}
		}
		for j := center; j <= right && j < nBins; j++ {
			if right != center {
				filters[i][j] = float64(right-j) / float64(right-center)
			}
		}
	}
	return &melFilterbank{filters: filters}
}

func (fb *melFilterbank) apply(power []float64, out []float64) {
	for i, filter := range fb.filters {
		sum := 0.0
		for j, coeff := range filter {
			if coeff != 0 && j < len(power) {
				sum += coeff * power[j]
			}
		}
		out[i] = sum
	}
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
