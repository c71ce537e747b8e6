// Package services defines the shared error taxonomy for the alignment
// pipeline together with context helpers that carry run, utterance and
// stage identifiers across pipeline boundaries.
//
// Every failure surfaced to the CLI or the batch journal is tagged with
// one of the exported sentinel errors so callers can map it to an exit
// code or a terminal utterance status without inspecting error text.
package services
