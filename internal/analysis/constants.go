package analysis

import (
	"runtime"

	"idioms/internal/anonymize"
)

// Constants for scanning
const (
	// DefaultWindow is the number of instructions anonymized per candidate start
	DefaultWindow = anonymize.DefaultWindow

	// MaxWindow bounds the configurable window; no template is longer
	MaxWindow = 256
)

// DefaultWorkers is the number of functions scanned concurrently.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
