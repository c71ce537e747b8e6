// Package feature computes MFCC observation vectors for the in-process
// aligner: pre-emphasis, overlapping Hamming-windowed frames, FFT power
// spectrum, mel filterbank, DCT, liftering, cepstral mean
// normalization and delta/delta-delta appendage. The output dimension
// is configured to match the loaded acoustic model's vector size.
package feature
