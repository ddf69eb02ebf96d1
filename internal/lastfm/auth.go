package lastfm

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// Authenticator runs the desktop authorization flow.
type Authenticator interface {
	GetToken() (string, error)
	GetAuthURL(token string) string
	GetSession(token string) (username, sessionKey string, err error)
}

// Login asks the user to authorize the application in a browser and waits
// for them to press Enter on in before exchanging the token for a session.
// openURL may be nil; its failure is not fatal since the URL is printed.
func Login(auth Authenticator, in io.Reader, out io.Writer, openURL func(string) error) (username, sessionKey string, err error) {
	token, err := auth.GetToken()
	if err != nil {
		return "", "", err
	}
	url := auth.GetAuthURL(token)

	fmt.Fprintf(out, "Authorize mpsd on Last.fm:\n\n  %s\n\nthen press Enter.\n", url)
	if openURL != nil {
		_ = openURL(url)
	}

	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return "", "", fmt.Errorf("waiting for confirmation: %w", err)
	}
	return auth.GetSession(token)
}

// OpenBrowser opens the given URL in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
