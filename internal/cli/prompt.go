package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/alchemab/aab/internal/config"
)

// ErrNoTerminal is returned when a prompt is needed but stdin is not a terminal.
var ErrNoTerminal = errors.New("stdin is not a terminal")

// promptProxyPassword reads the proxy password without echo.
func promptProxyPassword(user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("proxy password for %s required: set %s (%w)", user, config.EnvProxyPassword, ErrNoTerminal)
	}

	fmt.Fprintf(os.Stderr, "Proxy password for %s: ", user)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read proxy password: %w", err)
	}

	password := strings.TrimSpace(string(b))
	if password == "" {
		return "", errors.New("proxy password cannot be empty")
	}
	return password, nil
}
