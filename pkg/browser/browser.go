// Package browser opens URLs in the user's default browser and detects
// headless environments where that cannot work.
package browser

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// Headless reports whether the current session has no reachable display.
// SSH sessions count as headless even when X forwarding might exist; the
// caller falls back to printing the URL for manual opening.
func Headless() bool {
	if os.Getenv("SSH_CLIENT") != "" || os.Getenv("SSH_TTY") != "" {
		return true
	}
	if runtime.GOOS == "linux" {
		return os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
	}
	return false
}

// Open launches the platform browser on url without waiting for it to exit.
func Open(url string) error {
	name, args := launcher(url)
	if name == "" {
		return errors.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to open browser")
	}
	// Detach so the CLI does not hold a zombie child for the browser's
	// lifetime.
	return cmd.Process.Release()
}

func launcher(url string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "linux":
		return "xdg-open", []string{url}
	}
	return "", nil
}
