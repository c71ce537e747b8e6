// Package audio reads and writes PCM WAV clips. Clips are decoded
// fully into memory: alignment inputs are inter-pausal units of a few
// seconds, not whole recordings.
package audio
