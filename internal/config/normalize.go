package config

import (
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.WorkDir, err = ExpandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Model.Dir, err = ExpandPath(c.Model.Dir); err != nil {
		return err
	}

	c.Align.Aligner = strings.ToLower(strings.TrimSpace(c.Align.Aligner))
	c.Align.UnknownWordPolicy = strings.ToLower(strings.TrimSpace(c.Align.UnknownWordPolicy))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if env := strings.TrimSpace(os.Getenv("PALIGN_JULIUS")); env != "" {
		c.Align.JuliusBinary = env
	}

	if c.Model.SnapToleranceMs <= 0 {
		c.Model.SnapToleranceMs = c.Model.FrameShiftMs / 2
	}
	if c.Align.Workers <= 0 {
		c.Align.Workers = runtime.NumCPU()
	}
	return nil
}
