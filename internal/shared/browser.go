package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// browserCommand picks the command that opens url. $BROWSER wins on every platform; a Linux
// session without a display has no browser to open.
func browserCommand(goos, url string, getenv func(string) string) ([]string, error) {
	if b := strings.TrimSpace(getenv("BROWSER")); b != "" {
		return append(strings.Fields(b), url), nil
	}

	switch goos {
	case "darwin":
		return []string{"open", url}, nil
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		if getenv("DISPLAY") == "" && getenv("WAYLAND_DISPLAY") == "" {
			return nil, fmt.Errorf("%w: no display for a browser", ErrServiceUnavailable)
		}
		return []string{"xdg-open", url}, nil
	default:
		return nil, fmt.Errorf("%w: cannot open a browser on %s", ErrServiceUnavailable, goos)
	}
}

// OpenBrowser starts the user's browser on url without waiting for it to exit.
// Callers print the url themselves when it fails.
func OpenBrowser(url string) error {
	args, err := browserCommand(runtime.GOOS, url, os.Getenv)
	if err != nil {
		return err
	}
	if err := exec.Command(args[0], args[1:]...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
