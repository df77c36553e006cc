package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/loykin/lokcaldev/internal/service"
)

const MariaDBID = "mariadb"

// MariaDB drives mysqld as a directly owned child.
type MariaDB struct {
	opts Options
}

func NewMariaDB(opts Options) *MariaDB { return &MariaDB{opts: opts} }

func (m *MariaDB) ID() string              { return MariaDBID }
func (m *MariaDB) Name() string            { return "MariaDB" }
func (m *MariaDB) Kind() Kind              { return KindMariaDB }
func (m *MariaDB) Port() *int              { return service.IntPtr(m.opts.Config.MariaDBPort) }
func (m *MariaDB) RequiresElevation() bool { return false }

func (m *MariaDB) BaseDir() string    { return m.opts.paths().MariaDBDir() }
func (m *MariaDB) Binary() string     { return filepath.Join(m.BaseDir(), "bin", "mysqld") }
func (m *MariaDB) DataDir() string    { return filepath.Join(m.opts.paths().Data, "mariadb") }
func (m *MariaDB) PIDPath() string    { return filepath.Join(m.opts.paths().Data, "mariadb.pid") }
func (m *MariaDB) SocketPath() string { return filepath.Join(m.opts.paths().Data, "mariadb.sock") }
func (m *MariaDB) LogPath() string    { return filepath.Join(m.opts.paths().Logs, "mariadb.log") }

// Initialized reports whether the system database has been created.
func (m *MariaDB) Initialized() bool { return exists(filepath.Join(m.DataDir(), "mysql")) }

// installDBScript returns the first install-db helper shipped with the binaries.
func (m *MariaDB) installDBScript() string {
	for _, p := range []string{
		filepath.Join(m.BaseDir(), "bin", "mariadb-install-db"),
		filepath.Join(m.BaseDir(), "scripts", "mysql_install_db"),
		filepath.Join(m.BaseDir(), "scripts", "mariadb-install-db"),
	} {
		if exists(p) {
			return p
		}
	}
	return ""
}

func (m *MariaDB) Info(ctx context.Context) service.Info {
	installed := exists(m.Binary())
	if !installed {
		return observed(m, false, m.Initialized(), "", false, 0)
	}
	alive, pid := m.opts.PIDs.ReadAndValidate(m.PIDPath())
	version := mariadbVersion(probeOutput(ctx, m.Binary(), "--version"))
	return observed(m, true, m.Initialized(), version, alive, pid)
}

// Initialize creates the data directory with the install-db script. A
// non-zero exit is tolerated when the system tables were still created.
func (m *MariaDB) Initialize(ctx context.Context) error {
	if !exists(m.Binary()) {
		return service.Errorf(service.OpInitialize, MariaDBID, service.ErrNotInstalled, "mysqld not found at %s", m.Binary())
	}
	script := m.installDBScript()
	if script == "" {
		return service.Errorf(service.OpInitialize, MariaDBID, service.ErrNotInstalled, "no install-db script under %s", m.BaseDir())
	}
	if err := os.MkdirAll(m.DataDir(), 0o750); err != nil {
		return service.Wrap(service.OpInitialize, MariaDBID, service.ErrConfigWriteFailed, err)
	}

	args := []string{"--no-defaults", "--datadir=" + toSlash(m.DataDir())}
	if runtime.GOOS != "windows" {
		args = append(args, "--basedir="+m.BaseDir())
	}
	var stderr bytes.Buffer
	// #nosec G204
	cmd := exec.CommandContext(ctx, script, args...)
	cmd.Dir = m.BaseDir()
	cmd.Env = m.opts.environ()
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return service.Wrap(service.OpInitialize, MariaDBID, service.ErrProcessSpawnFailed, err)
		}
		if strings.Contains(strings.ToLower(msg), "error") && !m.Initialized() {
			return service.Errorf(service.OpInitialize, MariaDBID, service.ErrProcessSpawnFailed, "install-db failed: %s", msg)
		}
		m.opts.logger().Warn("install-db reported problems", "stderr", msg)
	}
	m.opts.logger().Info("initialized mariadb", "datadir", m.DataDir())
	return nil
}

func (m *MariaDB) Start(ctx context.Context) (*Child, int, error) {
	if !exists(m.Binary()) {
		return nil, 0, service.Errorf(service.OpStart, MariaDBID, service.ErrNotInstalled, "mysqld not found at %s", m.Binary())
	}
	if alive, pid := m.opts.PIDs.ReadAndValidate(m.PIDPath()); alive {
		return nil, pid, nil
	}
	if !m.Initialized() {
		if err := m.Initialize(ctx); err != nil {
			return nil, 0, err
		}
	}
	if err := os.MkdirAll(m.opts.paths().Logs, 0o750); err != nil {
		return nil, 0, service.Wrap(service.OpStart, MariaDBID, service.ErrConfigWriteFailed, err)
	}

	args := []string{
		"--no-defaults",
		"--basedir=" + toSlash(m.BaseDir()),
		"--datadir=" + toSlash(m.DataDir()),
		"--pid-file=" + toSlash(m.PIDPath()),
		"--log-error=" + toSlash(m.LogPath()),
		fmt.Sprintf("--port=%d", m.opts.Config.MariaDBPort),
		"--bind-address=127.0.0.1",
		"--skip-grant-tables",
	}
	if runtime.GOOS == "windows" {
		args = append(args, "--skip-named-pipe")
	} else {
		args = append(args, "--socket="+m.SocketPath())
	}
	// #nosec G204
	cmd := exec.Command(m.Binary(), args...)
	cmd.Dir = m.BaseDir()
	cmd.Env = m.opts.environ()
	child, err := spawn(cmd, m.opts.Output.Writer(MariaDBID+"-output"))
	if err != nil {
		return nil, 0, service.Wrap(service.OpStart, MariaDBID, service.ErrProcessSpawnFailed, err)
	}
	m.opts.PIDs.Write(m.PIDPath(), child.PID())
	m.opts.logger().Info("started mariadb", "pid", child.PID(), "port", m.opts.Config.MariaDBPort)
	return child, child.PID(), nil
}

func (m *MariaDB) Stop(context.Context) error {
	return stopByPIDFile(m.opts, MariaDBID, m.PIDPath())
}
