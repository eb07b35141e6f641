package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// startXvfb starts a virtual display for headful Chrome.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	size := "1920x1080x24"
	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		size = fmt.Sprintf("%dx%dx24", m.cfg.ViewportWidth, m.cfg.ViewportHeight)
	}
	cmd := exec.Command("Xvfb", display, "-screen", "0", size, "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	time.Sleep(500 * time.Millisecond)

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", size, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		_ = m.xvfb.Process.Kill()
		_ = m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
