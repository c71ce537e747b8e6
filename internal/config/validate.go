package config

import (
	"errors"
	"fmt"
	"regexp"
)

var knownAligners = map[string]struct{}{
	"basic":   {},
	"viterbi": {},
	"julius":  {},
}

var knownPolicies = map[string]struct{}{
	"fail":  {},
	"skip":  {},
	"spell": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateAlign(); err != nil {
		return err
	}
	if err := c.validateTrack(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateModel() error {
	if c.Model.FrameShiftMs <= 0 {
		return errors.New("model.frame_shift_ms must be positive")
	}
	if c.Model.FrameLengthMs < c.Model.FrameShiftMs {
		return errors.New("model.frame_length_ms must be at least frame_shift_ms")
	}
	return nil
}

func (c *Config) validateAlign() error {
	if _, ok := knownAligners[c.Align.Aligner]; !ok {
		return fmt.Errorf("align.aligner: unknown value %q (expected basic, viterbi or julius)", c.Align.Aligner)
	}
	if _, ok := knownPolicies[c.Align.UnknownWordPolicy]; !ok {
		return fmt.Errorf("align.unknown_word_policy: unknown value %q (expected fail, skip or spell)", c.Align.UnknownWordPolicy)
	}
	if c.Align.TimeoutSeconds <= 0 {
		return errors.New("align.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTrack() error {
	if c.Track.Pattern != "" {
		if _, err := regexp.Compile(c.Track.Pattern); err != nil {
			return fmt.Errorf("track.pattern: %w", err)
		}
	}
	if c.Track.DurationToleranceSeconds < 0 {
		return errors.New("track.duration_tolerance_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown value %q", c.Logging.Level)
	}
	return nil
}
