package worker

import (
	"os"
	"strings"

	"arbejdsret/internal/config"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("ARBEJDSRET_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		config.Logger.Debugf(format, args...)
	}
}
