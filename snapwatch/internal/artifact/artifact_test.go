package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/out", "5_3_2024__7_8_9_abc", "")
	if got, want := l.ScreenshotPath(7), filepath.Join("/out", "snapshots", "5_3_2024__7_8_9_abc", "snapshot_7.png"); got != want {
		t.Errorf("ScreenshotPath = %q, want %q", got, want)
	}
	if got, want := l.DOMPath(7), filepath.Join("/out", "dom_snapshots", "5_3_2024__7_8_9_abc", "snapshot_7.mhtml"); got != want {
		t.Errorf("DOMPath = %q, want %q", got, want)
	}
	if got := NewLayout("/out", "s", "jpeg").ScreenshotPath(1); !strings.HasSuffix(got, "snapshot_1.jpeg") {
		t.Errorf("jpeg path = %q", got)
	}
}

func TestDestinationsCreatesFile(t *testing.T) {
	l := NewLayout(t.TempDir(), "sess", "")
	d := NewDestinations(l)

	w, err := d.OpenDestination(3)
	if err != nil {
		t.Fatalf("OpenDestination: %v", err)
	}
	if _, err := w.Write([]byte("MIME-Version: 1.0")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(l.DOMPath(3))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "MIME-Version: 1.0" {
		t.Errorf("content = %q", data)
	}
}

func TestScreenshotWriterPersistsAndDrains(t *testing.T) {
	l := NewLayout(t.TempDir(), "sess", "png")
	w := NewScreenshotWriter(l, 16, nil)

	for id := int64(1); id <= 5; id++ {
		w.PersistScreenshot(id, []byte{byte(id)})
	}
	w.Close()

	for id := int64(1); id <= 5; id++ {
		data, err := os.ReadFile(l.ScreenshotPath(id))
		if err != nil {
			t.Fatalf("snapshot %d: %v", id, err)
		}
		if len(data) != 1 || data[0] != byte(id) {
			t.Errorf("snapshot %d content = %v", id, data)
		}
	}
	written, dropped := w.Counts()
	if written != 5 || dropped != 0 {
		t.Errorf("counts = %d/%d, want 5/0", written, dropped)
	}
	// Close is idempotent.
	w.Close()
}

func TestScreenshotWriterAfterClose(t *testing.T) {
	l := NewLayout(t.TempDir(), "sess", "png")
	w := NewScreenshotWriter(l, 4, nil)
	w.Close()

	w.PersistScreenshot(9, []byte("late"))

	written, dropped := w.Counts()
	if written != 0 || dropped != 1 {
		t.Errorf("counts = %d/%d, want 0/1", written, dropped)
	}
	if _, err := os.Stat(l.ScreenshotPath(9)); !os.IsNotExist(err) {
		t.Errorf("late screenshot written: %v", err)
	}
}

func TestLineLogFileName(t *testing.T) {
	at := time.Date(2024, 5, 3, 7, 8, 9, 0, time.Local)
	if got := LineLogFileName(at); got != "5_3_2024__7_8_9.txt" {
		t.Errorf("LineLogFileName = %q", got)
	}
}

func TestLineLogAppend(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, 5, 3, 7, 8, 9, 0, time.Local)
	var mirror bytes.Buffer

	l, err := OpenLineLog(root, "", &mirror, func() time.Time { return at })
	if err != nil {
		t.Fatalf("OpenLineLog: %v", err)
	}
	if want := filepath.Join(root, "snapshot_logs", "5_3_2024__7_8_9.txt"); l.Path() != want {
		t.Errorf("path = %q, want %q", l.Path(), want)
	}

	l.AppendLine("snapshot: plain", false)
	l.AppendLine("snapshot: timed", true)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after Close are ignored on the file.
	l.AppendLine("late", false)

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "snapshot: plain\nsnapshot: timed,\tTime: " + strconv.FormatInt(at.UnixMicro(), 10) + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
	if !strings.HasPrefix(mirror.String(), want) {
		t.Errorf("mirror = %q", mirror.String())
	}
}
