// FILE: lixenwraith/layersync/timing.go
package layersync

import "time"

// Timing constants for the layer watcher.
const (
	DefaultDebounce      = 300 * time.Millisecond // Coalesce editor save bursts
	DefaultReloadTimeout = 5 * time.Second        // Upper bound for one watch-triggered rebuild or reconcile
	ShutdownTimeout      = 100 * time.Millisecond // Graceful watcher termination window
)

// Engine limits.
const (
	DefaultMaxChainDepth   = 64  // Nested extends before resolution gives up
	DefaultMaxDiffElements = 512 // Arrays longer than this are reported as complex drift
	DefaultMaxWatchers     = 100 // Subscriber channels per watcher
	watchChannelBuffer     = 10
)

// DefaultCaptureFileName is the reserved layer that receives captured live edits.
const DefaultCaptureFileName = "settings.capture.json"
