package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds a per-run log file path using OS-appropriate path separators.
func LogFilePath(logsDir, command string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.%s.log", ServiceName, command, sessionStart.Format("20060102_150405")),
	)
}
