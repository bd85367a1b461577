package config

import "github.com/Sumatoshi-tech/rbarena/pkg/workload"

// Arena defaults.
const (
	DefaultArenaInitialCapacity      = 1024
	DefaultArenaMaxBytes             = "0"
	DefaultArenaHibernationThreshold = 0
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = LogFormatText
)

// Bench defaults mirror workload.DefaultConfig.
const (
	DefaultBenchSeed        = 1
	DefaultBenchKeys        = workload.DefaultKeys
	DefaultBenchKeyMin      = workload.DefaultKeyMin
	DefaultBenchKeyMax      = workload.DefaultKeyMax
	DefaultBenchDeleteEvery = workload.DefaultDeleteEvery
	DefaultBenchVerifyEvery = workload.DefaultVerifyEvery
	DefaultBenchSampleEvery = workload.DefaultSampleEvery
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
