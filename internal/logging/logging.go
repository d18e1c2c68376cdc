package logging

import (
	"path/filepath"
	"strings"
	"time"
)

// sessionStamp sorts lexically and does not depend on the host zone.
const sessionStamp = "20060102T150405Z"

// SessionLogPath returns the log file for one run of command under logsDir,
// e.g. logs/globe-serve.20260212T213836Z.log. An empty command yields
// logs/globe.<stamp>.log. Path separators in command are replaced so the
// file always lands directly in logsDir.
func SessionLogPath(logsDir, command string, sessionStart time.Time) string {
	name := "globe"
	if command = strings.TrimSpace(command); command != "" {
		name += "-" + strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == filepath.Separator {
				return '_'
			}
			return r
		}, command)
	}
	return filepath.Join(logsDir, name+"."+sessionStart.UTC().Format(sessionStamp)+".log")
}
