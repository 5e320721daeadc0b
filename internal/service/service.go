// Package service generates the systemd user unit that loads the
// profile at session start and saves it at session end, plus the
// optional password-less sudo instructions. It writes files and prints
// commands; enabling the unit is left to the user.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"vramctl/internal/config"
)

// UnitName is the systemd user unit filename.
const UnitName = "vramctl.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=RAM Profile Manager
After=graphical-session.target

[Service]
Type=oneshot
ExecStart={{.Exec}} load --yes
ExecStop={{.Exec}} save --yes
RemainAfterExit=yes

[Install]
WantedBy=default.target
`))

// UnitDir returns the systemd user unit directory.
func UnitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

// Install writes the user unit invoking execPath and returns the unit
// file path. The caller prints the daemon-reload/enable commands.
func Install(execPath string) (string, error) {
	dir, err := UnitDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create unit directory: %w", err)
	}

	unitPath := filepath.Join(dir, UnitName)
	var b strings.Builder
	if err := unitTemplate.Execute(&b, struct{ Exec string }{Exec: execPath}); err != nil {
		return "", fmt.Errorf("render unit: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write unit file: %w", err)
	}
	return unitPath, nil
}

// Uninstall removes the user unit file. Removing an absent unit is not
// an error.
func Uninstall() (string, error) {
	dir, err := UnitDir()
	if err != nil {
		return "", err
	}
	unitPath := filepath.Join(dir, UnitName)
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove unit file: %w", err)
	}
	return unitPath, nil
}

// SudoHelp returns the optional sudoers instructions for password-less
// mount/unmount of the profile paths.
func SudoHelp(paths config.Paths) string {
	user := os.Getenv("USER")
	if user == "" {
		user = "USERNAME"
	}
	return fmt.Sprintf(`OPTIONAL: password-less mount/umount configuration

vramctl works fine without this; configure it to avoid the sudo
password prompt on load and save.

1) Open sudoers safely:

   sudo visudo

2) Add this line at the end (replace %s if needed):

   %s ALL=(root) NOPASSWD: \
     /bin/mount --bind %s %s, \
     /bin/umount %s

3) Save and exit.
`, user, user, paths.Staging, paths.Profile, paths.Profile)
}
