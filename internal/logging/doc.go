// Package logging builds slog loggers for the CLI and the batch
// runner. Two handler formats are supported: a human-oriented console
// handler (colored when stderr is a TTY) and a line-delimited JSON
// handler for machine consumption. Context helpers attach run,
// utterance and stage identifiers to every record emitted under a
// pipeline context.
package logging
