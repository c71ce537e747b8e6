package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the five failure categories of the pipeline.
// Format errors are fatal and never retried. Vocabulary errors are
// recoverable per the configured unknown-word policy. Recognizer
// errors allow one bounded retry for no-path only. Coverage errors are
// fatal for the utterance. Media errors are fatal for segmentation only.
var (
	ErrFormat     = errors.New("format error")
	ErrVocabulary = errors.New("vocabulary error")
	ErrRecognizer = errors.New("recognizer error")
	ErrCoverage   = errors.New("coverage error")
	ErrMedia      = errors.New("media error")
	ErrTransient  = errors.New("transient failure")
)

// Exit codes reported by the CLI, one per taxonomy category.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitFormat     = 2
	ExitVocabulary = 3
	ExitRecognizer = 4
	ExitCoverage   = 5
	ExitMedia      = 6
)

// Wrap builds an error that includes stage context while tagging it
// with the provided taxonomy marker. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps an error to the CLI exit code of its taxonomy category.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrVocabulary):
		return ExitVocabulary
	case errors.Is(err, ErrRecognizer):
		return ExitRecognizer
	case errors.Is(err, ErrCoverage):
		return ExitCoverage
	case errors.Is(err, ErrMedia):
		return ExitMedia
	default:
		return ExitFailure
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
