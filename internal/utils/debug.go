package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	debugOnce   sync.Once
	debugLogger *log.Logger
)

// Debug writes a timestamped line to the debug log when PARAFETCH_DEBUG is
// set. The log lives next to the scratch state so a stuck download and its
// trace end up in the same place. No-op otherwise.
func Debug(format string, args ...any) {
	debugOnce.Do(initDebugLogger)
	if debugLogger == nil {
		return
	}
	debugLogger.Output(2, fmt.Sprintf(format, args...))
}

func initDebugLogger() {
	if os.Getenv("PARAFETCH_DEBUG") == "" {
		return
	}

	logsDir := filepath.Join(os.TempDir(), "parafetch", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		debugLogger = log.New(os.Stderr, "parafetch: ", log.LstdFlags)
		return
	}

	name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		debugLogger = log.New(os.Stderr, "parafetch: ", log.LstdFlags)
		return
	}
	debugLogger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
}
