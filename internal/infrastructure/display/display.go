// Package display opens a rendered map in the desktop image viewer.
package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// ErrHeadless is returned when no display is attached to the session.
var ErrHeadless = errors.New("no display available")

type Viewer struct {
	logger *zap.Logger
	getenv func(string) string
	goos   string
	start  func(*exec.Cmd) error
}

func NewViewer(logger *zap.Logger) *Viewer {
	return &Viewer{
		logger: logger,
		getenv: os.Getenv,
		goos:   runtime.GOOS,
		start:  (*exec.Cmd).Start,
	}
}

// Open hands path to the platform opener and returns without waiting for
// the viewer to exit. The viewer outlives ctx.
func (v *Viewer) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	var cmd *exec.Cmd
	switch v.goos {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		if v.getenv("DISPLAY") == "" && v.getenv("WAYLAND_DISPLAY") == "" {
			return ErrHeadless
		}
		cmd = exec.Command("xdg-open", path)
	}

	if err := v.start(cmd); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	v.logger.Debug("viewer started", zap.String("path", path), zap.Strings("args", cmd.Args))
	return nil
}
