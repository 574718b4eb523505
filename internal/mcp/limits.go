package mcp

const (
	// DefaultBenchCycles is used when the bench tool is called without cycles
	DefaultBenchCycles = 10

	// MaxBenchCycles is the maximum number of refresh cycles a bench call may run
	MaxBenchCycles = 1000

	// DefaultBenchFrames is the number of frames per synthetic bundle in a bench run
	DefaultBenchFrames = 20

	// MaxBenchFrames is the maximum number of frames per synthetic bundle
	MaxBenchFrames = 5000

	// MaxListedFrames is the maximum number of frame names returned per bundle
	MaxListedFrames = 1000

	// MaxOutputBytes is the maximum size of JSON output (5MB)
	MaxOutputBytes = 5 * 1024 * 1024
)
