package config

const (
	defaultWorkDir           = "~/.local/share/palign/work"
	defaultLogDir            = "~/.local/share/palign/logs"
	defaultFrameShiftMs      = 10.0
	defaultFrameLengthMs     = 25.0
	defaultAligner           = "viterbi"
	defaultUnknownWordPolicy = "fail"
	defaultJuliusBinary      = "julius"
	defaultTimeoutSeconds    = 300
	defaultDurationTolerance = 0.04
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Model: Model{
			FrameShiftMs:  defaultFrameShiftMs,
			FrameLengthMs: defaultFrameLengthMs,
			// Snap tolerance defaults to half a frame; resolved in
			// normalize() so it tracks frame_shift_ms overrides.
			SnapToleranceMs: 0,
		},
		Align: Align{
			Aligner:           defaultAligner,
			UnknownWordPolicy: defaultUnknownWordPolicy,
			JuliusBinary:      defaultJuliusBinary,
			TimeoutSeconds:    defaultTimeoutSeconds,
			Workers:           0,
			RelaxOnNoPath:     true,
		},
		Track: Track{
			Pattern:                  "",
			DurationToleranceSeconds: defaultDurationTolerance,
			FFmpegBinary:             defaultFFmpegBinary,
			FFprobeBinary:            defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
