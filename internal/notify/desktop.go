package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop shows notifications through the platform's notification tool.
// Platforms without one are skipped silently.
type Desktop struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewDesktop returns a notifier for the running platform
func NewDesktop() *Desktop {
	return &Desktop{
		goos: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Send runs the notification command
func (d *Desktop) Send(ctx context.Context, n Notification) error {
	name, args, ok := desktopCommand(d.goos, n)
	if !ok {
		return nil
	}
	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func desktopCommand(goos string, n Notification) (string, []string, bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptQuote(n.Body), appleScriptQuote(n.Title))
		return "osascript", []string{"-e", script}, true
	case "linux":
		urgency := "normal"
		if n.Level == LevelError {
			urgency = "critical"
		}
		return "notify-send", []string{"--app-name", "botfleet", "--urgency", urgency, "--icon", desktopIcon(n.Level), n.Title, n.Body}, true
	default:
		return "", nil, false
	}
}

func desktopIcon(l Level) string {
	switch l {
	case LevelSuccess:
		return "dialog-positive"
	case LevelWarning:
		return "dialog-warning"
	case LevelError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
