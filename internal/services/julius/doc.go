// Package julius wraps the Julius speech recognition engine invoked
// as a subprocess in forced-alignment mode. The client writes the
// grammar automaton and word dictionary Julius expects, runs the
// binary against one clip, and parses the phoneme alignment section
// of its output.
package julius
