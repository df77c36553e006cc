// Package drivertest installs fake service binaries for tests. Every fake is
// a /bin/sh script that answers version queries and otherwise sleeps, so the
// supervisor can spawn, probe and signal it like the real service.
package drivertest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/loykin/lokcaldev/internal/config"
)

const (
	NginxVersion   = "1.27.0"
	MariaDBVersion = "11.4.2-MariaDB"
)

// RequireUnix skips tests that spawn /bin/sh scripts.
func RequireUnix(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// Config returns settings rooted in a temp dir with an unprivileged nginx
// port and elevation disabled.
func Config(t testing.TB) *config.Config {
	t.Helper()
	c := config.Default()
	c.DataDir = t.TempDir()
	c.NginxPort = 8080
	c.Elevation.Mode = config.ElevationNever
	c.Elevation.PIDDelay = 50 * time.Millisecond
	c.Tail.PollInterval = 20 * time.Millisecond
	for _, d := range c.Paths().Dirs() {
		if err := os.MkdirAll(d, 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return c
}

// WriteScript writes an executable shell script at path.
func WriteScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// #nosec G306
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func InstallNginx(t testing.TB, p config.Paths) string {
	t.Helper()
	bin := filepath.Join(p.NginxDir(), "sbin", "nginx")
	WriteScript(t, bin, `for a in "$@"; do
  case "$a" in
    -v) echo "nginx version: nginx/`+NginxVersion+`" >&2; exit 0 ;;
    -t) echo "nginx: configuration file test is successful" >&2; exit 0 ;;
    reload|stop) exit 0 ;;
  esac
done
exec sleep 30
`)
	return bin
}

// InstallMariaDB installs mysqld and an install-db script that creates the
// system schema directory.
func InstallMariaDB(t testing.TB, p config.Paths) string {
	t.Helper()
	bin := filepath.Join(p.MariaDBDir(), "bin", "mysqld")
	WriteScript(t, bin, `if [ "$1" = "--version" ]; then
  echo "mysqld  Ver `+MariaDBVersion+` for Linux on x86_64 (MariaDB Server)"
  exit 0
fi
exec sleep 30
`)
	InstallMariaDBInstaller(t, p, `for a in "$@"; do
  case "$a" in --datadir=*) mkdir -p "${a#--datadir=}/mysql" ;; esac
done
`)
	return bin
}

// InstallMariaDBInstaller replaces the install-db script body.
func InstallMariaDBInstaller(t testing.TB, p config.Paths, body string) {
	t.Helper()
	WriteScript(t, filepath.Join(p.MariaDBDir(), "bin", "mariadb-install-db"), body)
}

// InstallPHP installs php-fpm for version, reporting patch release .7.
func InstallPHP(t testing.TB, p config.Paths, version string) string {
	t.Helper()
	bin := filepath.Join(p.PHPDir(version), "sbin", "php-fpm")
	WriteScript(t, bin, `if [ "$1" = "-v" ]; then
  echo "PHP `+version+`.7 (fpm-fcgi) (built: Jan  1 2024 00:00:00)"
  exit 0
fi
exec sleep 30
`)
	return bin
}

func InstallPhpMyAdmin(t testing.TB, p config.Paths, version string) {
	t.Helper()
	if err := os.MkdirAll(p.PhpMyAdmin, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p.PhpMyAdmin, "index.php"), []byte("<?php\n"), 0o644); err != nil {
		t.Fatalf("write index.php: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p.PhpMyAdmin, "VERSION"), []byte(version+"\n"), 0o644); err != nil {
		t.Fatalf("write VERSION: %v", err)
	}
}
