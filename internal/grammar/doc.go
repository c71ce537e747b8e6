// Package grammar builds per-utterance finite-state networks of legal
// phone sequences from an orthographic token sequence and a
// pronunciation dictionary. The network starts and ends on fixed
// silence arcs; every pronunciation variant of every token becomes an
// alternative path. Grammars are built per utterance and discarded
// after alignment.
package grammar
