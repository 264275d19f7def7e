package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mia/internal/logging"
)

// writeToolLog stores the stderr tail of a failed ffmpeg run under LogDir/tool
// and returns its path, or "" when no log directory is configured.
func (f FFmpeg) writeToolLog(name string, args []string, stderr string) string {
	logDir := strings.TrimSpace(f.LogDir)
	if logDir == "" {
		return ""
	}
	toolDir := filepath.Join(logDir, "tool")
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		f.logger().Warn("failed to create tool log directory; tool stderr not captured",
			logging.Error(err),
			logging.String(logging.FieldEventType, "tool_log_dir_failed"),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
		)
		return ""
	}
	timestamp := time.Now().UTC().Format("20060102T150405.000Z")
	path := filepath.Join(toolDir, fmt.Sprintf("%s-%s.log", timestamp, strings.ToLower(filepath.Base(name))))

	var payload strings.Builder
	payload.WriteString("command: ")
	payload.WriteString(strings.Join(append([]string{name}, args...), " "))
	payload.WriteString("\nstderr:\n")
	payload.WriteString(strings.TrimSpace(stderr))
	payload.WriteByte('\n')

	if err := os.WriteFile(path, []byte(payload.String()), 0o644); err != nil {
		f.logger().Warn("failed to write tool log; stderr detail lost",
			logging.Error(err),
			logging.String(logging.FieldEventType, "tool_log_write_failed"),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
		)
		return ""
	}
	return path
}
