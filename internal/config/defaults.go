package config

import "runtime"

const (
	defaultRawDataDir       = "~/Data/Raw"
	defaultAnalysesDir      = "~/Data/Analyses"
	defaultWriteMode        = 0
	defaultFrameStop        = 100000
	defaultBlockSize        = 100
	defaultPrimaryMode      = "phase"
	defaultModeKind         = "exec"
	defaultPhasePattern     = "*t{frame}*c1.tif"
	defaultPositionPattern  = "xy"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Name: Name{},
		Paths: Paths{
			RawData:  defaultRawDataDir,
			Analyses: defaultAnalysesDir,
		},
		Positions: []string{defaultPositionPattern},
		General: General{
			WriteMode:   defaultWriteMode,
			NumProcs:    defaultNumProcs(),
			FrameRange:  []int{0, defaultFrameStop},
			BlockSize:   defaultBlockSize,
			PrimaryMode: defaultPrimaryMode,
		},
		Modes: map[string]Mode{
			defaultPrimaryMode: {
				Kind:    defaultModeKind,
				Pattern: defaultPhasePattern,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultNumProcs() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
