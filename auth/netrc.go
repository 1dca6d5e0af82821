package auth

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/bgentry/go-netrc/netrc"
)

// NetrcCredentials looks up Basic credentials for host in the user's .netrc
// file.  Returns ok=false when the file is missing, unreadable, or carries
// no entry for the host.  Used only when no explicit auth was given and
// --ignore-netrc is absent.
func NetrcCredentials(host string) (Credentials, bool) {
	path := os.Getenv("NETRC")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Credentials{}, false
		}
		name := ".netrc"
		if runtime.GOOS == "windows" {
			name = "_netrc"
		}
		path = filepath.Join(home, name)
	}
	rc, err := netrc.ParseFile(path)
	if err != nil {
		return Credentials{}, false
	}
	// FindMachine falls back to the "default" entry when the host has none.
	machine := rc.FindMachine(host)
	if machine == nil || machine.Login == "" {
		return Credentials{}, false
	}
	return Credentials{Username: machine.Login, Password: machine.Password}, true
}
