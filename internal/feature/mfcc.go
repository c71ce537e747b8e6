package feature

import (
	"fmt"
	"math"
)

// Config holds the MFCC extraction parameters.
type Config struct {
	SampleRate    int
	FrameLenMs    float64
	FrameShiftMs  float64
	PreEmphasis   float64
	NumMelFilters int
	NumCepstra    int
	LowFreq       float64
	HighFreq      float64
	FFTSize       int
	CepLifter     int
	UseCMN        bool
	UseDelta      bool
	UseDeltaDelta bool
}

// DefaultConfig returns the standard 16kHz front-end configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FrameLenMs:    25.0,
		FrameShiftMs:  10.0,
		PreEmphasis:   0.97,
		NumMelFilters: 26,
		NumCepstra:    13,
		LowFreq:       0,
		HighFreq:      8000,
		FFTSize:       512,
		CepLifter:     22,
		UseCMN:        true,
		UseDelta:      true,
		UseDeltaDelta: true,
	}
}

// Dim returns the total observation vector dimension.
func (c Config) Dim() int {
	d := c.NumCepstra
	if c.UseDelta {
		d += c.NumCepstra
	}
	if c.UseDeltaDelta {
		d += c.NumCepstra
	}
	return d
}

// ForModelDim adjusts the delta configuration so that Dim() matches the
// acoustic model's declared vector size, when possible.
func (c Config) ForModelDim(vecSize int) (Config, error) {
	switch vecSize {
	case c.NumCepstra:
		c.UseDelta, c.UseDeltaDelta = false, false
	case 2 * c.NumCepstra:
		c.UseDelta, c.UseDeltaDelta = true, false
	case 3 * c.NumCepstra:
		c.UseDelta, c.UseDeltaDelta = true, true
	default:
		if vecSize%3 == 0 {
			c.NumCepstra = vecSize / 3
			c.UseDelta, c.UseDeltaDelta = true, true
		} else if vecSize%2 == 0 {
			c.NumCepstra = vecSize / 2
			c.UseDelta, c.UseDeltaDelta = true, false
		} else {
			c.NumCepstra = vecSize
			c.UseDelta, c.UseDeltaDelta = false, false
		}
	}
	if c.NumCepstra <= 0 || c.NumCepstra > c.NumMelFilters {
		return c, fmt.Errorf("feature config: cannot produce %d-dimensional vectors", vecSize)
	}
	return c, nil
}

// Extract computes MFCC features from normalized samples in [-1, 1].
// The result has shape [numFrames][Dim()].
func Extract(samples []float64, cfg Config) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("feature extract: empty samples")
	}
	frameLen := int(cfg.FrameLenMs * float64(cfg.SampleRate) / 1000.0)
	frameShift := int(cfg.FrameShiftMs * float64(cfg.SampleRate) / 1000.0)
	if frameLen <= 0 || frameShift <= 0 || frameLen > cfg.FFTSize {
		return nil, fmt.Errorf("feature extract: bad framing %d/%d (fft %d)", frameLen, frameShift, cfg.FFTSize)
	}
	if len(samples) < frameLen {
		return nil, fmt.Errorf("feature extract: audio too short for a single frame")
	}

	emphasized := preEmphasize(samples, cfg.PreEmphasis)
	window := hammingWindow(frameLen)
	filterbank := newMelFilterbank(cfg.NumMelFilters, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq)
	lifter := lifterTable(cfg.NumCepstra, cfg.CepLifter)

	numFrames := 1 + (len(emphasized)-frameLen)/frameShift
	mel := make([]float64, cfg.NumMelFilters)
	frame := make([]complex128, cfg.FFTSize)
	mfccs := make([][]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * frameShift
		for j := range frame {
			if j < frameLen {
				frame[j] = complex(emphasized[start+j]*window[j], 0)
			} else {
				frame[j] = 0
			}
		}
		power := powerSpectrum(fft(frame))
		filterbank.apply(power, mel)
		cepstra := dct(mel, cfg.NumCepstra)
		for j := range cepstra {
			cepstra[j] *= lifter[j]
		}
		mfccs[i] = cepstra
	}

	if cfg.UseCMN {
		applyCMN(mfccs)
	}
	if cfg.UseDelta {
		d1 := delta(mfccs, 2)
		if cfg.UseDeltaDelta {
			d2 := delta(d1, 2)
			for t := range mfccs {
				mfccs[t] = append(append(mfccs[t], d1[t]...), d2[t]...)
			}
		} else {
			for t := range mfccs {
				mfccs[t] = append(mfccs[t], d1[t]...)
			}
		}
	}
	return mfccs, nil
}

func preEmphasize(samples []float64, alpha float64) []float64 {
	out := make([]float64, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - alpha*samples[i-1]
	}
	return out
}

func hammingWindow(n int) []float64 {
	win := make([]float64, n)
	for i := range win {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

func powerSpectrum(spectrum []complex128) []float64 {
	nBins := len(spectrum)/2 + 1
	power := make([]float64, nBins)
	scale := 1.0 / float64(len(spectrum))
	for i := 0; i < nBins; i++ {
		re := real(spectrum[i])
		im := imag(spectrum[i])
		power[i] = (re*re + im*im) * scale
	}
	return power
}

// dct applies a type-II DCT keeping numCepstra coefficients, with the
// conventional log compression of the mel energies.
func dct(mel []float64, numCepstra int) []float64 {
	n := len(mel)
	logMel := make([]float64, n)
	for i, e := range mel {
		if e < 1e-10 {
			e = 1e-10
		}
		logMel[i] = math.Log(e)
	}
	out := make([]float64, numCepstra)
	for k := 0; k < numCepstra; k++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += logMel[i] * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/float64(n))
		}
		out[k] = sum * math.Sqrt(2.0/float64(n))
	}
	return out
}

func lifterTable(numCepstra, cepLifter int) []float64 {
	table := make([]float64, numCepstra)
	for i := range table {
		if cepLifter > 0 {
			table[i] = 1 + float64(cepLifter)/2*math.Sin(math.Pi*float64(i)/float64(cepLifter))
		} else {
			table[i] = 1
		}
	}
	return table
}

// applyCMN subtracts the utterance-level mean from each dimension.
func applyCMN(features [][]float64) {
	if len(features) == 0 {
		return
	}
	dim := len(features[0])
	mean := make([]float64, dim)
	for _, row := range features {
		for d, v := range row {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(features))
	}
	for _, row := range features {
		for d := range row {
			row[d] -= mean[d]
		}
	}
}

// delta computes regression-based derivative coefficients with window n.
func delta(features [][]float64, n int) [][]float64 {
	T := len(features)
	if T == 0 {
		return nil
	}
	dim := len(features[0])
	denom := 0.0
	for k := 1; k <= n; k++ {
		denom += float64(k * k)
	}
	denom *= 2

	out := make([][]float64, T)
	for t := 0; t < T; t++ {
		out[t] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			num := 0.0
			for k := 1; k <= n; k++ {
				hi := min(t+k, T-1)
				lo := max(t-k, 0)
				num += float64(k) * (features[hi][d] - features[lo][d])
			}
			out[t][d] = num / denom
		}
	}
	return out
}
