package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// LineLog is the forensic text log: one line per scheduler decision,
// optionally suffixed with ",\tTime: <unix microseconds>".
type LineLog struct {
	mu     sync.Mutex
	f      *os.File
	mirror io.Writer
	clock  func() time.Time
	path   string
}

// LineLogFileName formats {month}_{day}_{year}__{hour}_{minute}_{second}.txt
// in local time without zero padding.
func LineLogFileName(t time.Time) string {
	t = t.Local()
	return fmt.Sprintf("%d_%d_%d__%d_%d_%d.txt",
		int(t.Month()), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second())
}

// OpenLineLog creates {root}/snapshot_logs/{name}. An empty name uses
// LineLogFileName(clock()). mirror, if non-nil, receives a copy of each line.
func OpenLineLog(root, name string, mirror io.Writer, clock func() time.Time) (*LineLog, error) {
	if clock == nil {
		clock = time.Now
	}
	dir := filepath.Join(root, "snapshot_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create log dir: %w", err)
	}
	if name == "" {
		name = LineLogFileName(clock())
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("artifact: open line log: %w", err)
	}
	return &LineLog{f: f, mirror: mirror, clock: clock, path: path}, nil
}

// Path returns the log file path.
func (l *LineLog) Path() string { return l.path }

// AppendLine writes text as one line, with the time suffix if withTime.
// Write errors are dropped.
func (l *LineLog) AppendLine(text string, withTime bool) {
	line := text
	if withTime {
		line += ",\tTime: " + strconv.FormatInt(l.clock().UnixMicro(), 10)
	}
	line += "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		_, _ = l.f.WriteString(line)
	}
	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, line)
	}
}

// Close flushes and closes the file.
func (l *LineLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
