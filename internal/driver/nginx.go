package driver

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2/maybe"

	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/pidfile"
	"github.com/loykin/lokcaldev/internal/service"
)

const NginxID = "nginx"

// privilegedPortLimit is the first port an unprivileged process may bind.
const privilegedPortLimit = 1024

var geteuid = os.Geteuid

// Nginx drives the web server. When its port needs root it is launched in
// daemon mode through the Elevator and tracked only by its PID file.
type Nginx struct {
	opts Options
}

func NewNginx(opts Options) *Nginx { return &Nginx{opts: opts} }

func (n *Nginx) ID() string   { return NginxID }
func (n *Nginx) Name() string { return "Nginx" }
func (n *Nginx) Kind() Kind   { return KindNginx }
func (n *Nginx) Port() *int   { return service.IntPtr(n.opts.Config.NginxPort) }

func (n *Nginx) RequiresElevation() bool {
	switch n.opts.Config.Elevation.Mode {
	case config.ElevationAlways:
		return true
	case config.ElevationNever:
		return false
	}
	// geteuid is -1 on Windows, where no port needs elevation.
	return n.opts.Config.NginxPort < privilegedPortLimit && geteuid() > 0
}

func (n *Nginx) Binary() string   { return filepath.Join(n.opts.paths().NginxDir(), "sbin", "nginx") }
func (n *Nginx) ConfPath() string { return filepath.Join(n.opts.paths().NginxConf, "nginx.conf") }
func (n *Nginx) PIDPath() string  { return filepath.Join(n.opts.paths().NginxConf, "nginx.pid") }

func (n *Nginx) Info(ctx context.Context) service.Info {
	installed := exists(n.Binary())
	if !installed {
		return observed(n, false, false, "", false, 0)
	}
	alive, pid := n.opts.PIDs.ReadAndValidate(n.PIDPath())
	version := nginxVersion(probeOutput(ctx, n.Binary(), "-v"))
	return observed(n, true, false, version, alive, pid)
}

// upstreamPort picks the PHP-FPM port nginx forwards to: the first running
// version, else the first installed one, else the base port.
func (n *Nginx) upstreamPort() int {
	cfg := n.opts.Config
	versions := cfg.KnownPHPVersions()
	for _, v := range versions {
		if ok, _ := n.opts.PIDs.ReadAndValidate(phpFPMPIDPath(n.opts.paths(), v)); ok {
			return cfg.PHPFPMPort(v)
		}
	}
	for _, v := range versions {
		if exists(phpFPMBinary(n.opts.paths(), v)) {
			return cfg.PHPFPMPort(v)
		}
	}
	return cfg.PHPFPMBasePort
}

// EnsureConfig writes nginx.conf when it is missing or stale, plus the
// support files nginx includes. It reports whether nginx.conf was rewritten.
func (n *Nginx) EnsureConfig() (bool, error) {
	p := n.opts.paths()
	for _, dir := range []string{p.NginxConf, filepath.Join(p.NginxConf, "sites-enabled"), p.WWW, p.Logs} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return false, service.Wrap(service.OpConfig, NginxID, service.ErrConfigWriteFailed, err)
		}
	}

	pmaInstalled := exists(filepath.Join(p.PhpMyAdmin, "index.php"))
	phpPort := n.upstreamPort()
	port := n.opts.Config.NginxPort

	changed := true
	if existing, err := os.ReadFile(n.ConfPath()); err == nil {
		changed = needsRewrite(string(existing), pmaInstalled, phpPort, port)
	}
	if changed {
		usr, grp := currentUserGroup()
		data := nginxConfData{
			User:    usr,
			Group:   grp,
			PIDFile: toSlash(n.PIDPath()),
			Logs:    toSlash(p.Logs),
			ConfDir: toSlash(p.NginxConf),
			WWW:     toSlash(p.WWW),
			Port:    port,
			PHPPort: phpPort,
		}
		if pmaInstalled {
			data.PhpMyAdminRoot = toSlash(filepath.Dir(p.PhpMyAdmin))
		}
		body, err := renderNginxConf(data)
		if err != nil {
			return false, service.Wrap(service.OpConfig, NginxID, service.ErrConfigWriteFailed, err)
		}
		if err := maybe.WriteFile(n.ConfPath(), body, 0o644); err != nil {
			return false, service.Wrap(service.OpConfig, NginxID, service.ErrConfigWriteFailed, err)
		}
		n.opts.logger().Info("wrote nginx config", "path", n.ConfPath(), "php_port", phpPort, "phpmyadmin", pmaInstalled)
	}

	support := map[string]string{
		filepath.Join(p.WWW, "index.php"):            defaultIndexPHP,
		filepath.Join(p.NginxConf, "mime.types"):     mimeTypes,
		filepath.Join(p.NginxConf, "fastcgi_params"): fastcgiParams,
	}
	for path, content := range support {
		if err := writeIfMissing(path, content); err != nil {
			return changed, service.Wrap(service.OpConfig, NginxID, service.ErrConfigWriteFailed, err)
		}
	}
	return changed, nil
}

func (n *Nginx) Start(ctx context.Context) (*Child, int, error) {
	if !exists(n.Binary()) {
		return nil, 0, service.Errorf(service.OpStart, NginxID, service.ErrNotInstalled, "nginx binary not found at %s", n.Binary())
	}
	changed, err := n.EnsureConfig()
	if err != nil {
		return nil, 0, err
	}

	if alive, pid := n.opts.PIDs.ReadAndValidate(n.PIDPath()); alive {
		if changed {
			if err := n.Reload(ctx); err != nil {
				n.opts.logger().Warn("reload after config change failed", "error", err)
			}
		}
		n.opts.logger().Info("nginx already running", "pid", pid)
		return nil, pid, nil
	}

	if n.RequiresElevation() {
		return n.startElevated(ctx)
	}

	// #nosec G204
	cmd := exec.Command(n.Binary(), "-c", n.ConfPath(), "-g", "daemon off;")
	cmd.Dir = n.opts.paths().NginxConf
	cmd.Env = n.opts.environ()
	child, err := spawn(cmd, n.opts.Output.Writer(NginxID+"-output"))
	if err != nil {
		return nil, 0, service.Wrap(service.OpStart, NginxID, service.ErrProcessSpawnFailed, err)
	}
	n.opts.PIDs.Write(n.PIDPath(), child.PID())
	n.opts.logger().Info("started nginx", "pid", child.PID(), "port", n.opts.Config.NginxPort)
	return child, child.PID(), nil
}

func (n *Nginx) startElevated(ctx context.Context) (*Child, int, error) {
	if n.opts.Elevator == nil {
		return nil, 0, service.Errorf(service.OpStart, NginxID, service.ErrPrivilegeElevationFailed, "no elevation helper on this platform")
	}
	if err := n.opts.Elevator.Run(ctx, n.Binary(), "-c", n.ConfPath()); err != nil {
		return nil, 0, service.Wrap(service.OpStart, NginxID, service.ErrPrivilegeElevationFailed, err)
	}
	if err := waitDelay(ctx, n.opts.Config.Elevation.PIDDelay); err != nil {
		return nil, 0, service.Wrap(service.OpStart, NginxID, service.ErrProcessSpawnFailed, err)
	}
	pid, err := pidfile.Read(n.PIDPath())
	if err != nil {
		return nil, 0, service.Wrap(service.OpStart, NginxID, service.ErrProcessSpawnFailed, err)
	}
	n.opts.logger().Info("started nginx with elevated privileges", "pid", pid, "port", n.opts.Config.NginxPort)
	return nil, pid, nil
}

func (n *Nginx) Stop(ctx context.Context) error {
	if !n.RequiresElevation() {
		return stopByPIDFile(n.opts, NginxID, n.PIDPath())
	}
	alive, pid := n.opts.PIDs.ReadAndValidate(n.PIDPath())
	if alive && exists(n.Binary()) {
		if n.opts.Elevator == nil {
			return service.Errorf(service.OpStop, NginxID, service.ErrPrivilegeElevationFailed, "no elevation helper on this platform")
		}
		if err := n.opts.Elevator.Run(ctx, n.Binary(), "-c", n.ConfPath(), "-s", "stop"); err != nil {
			return service.Wrap(service.OpStop, NginxID, service.ErrPrivilegeElevationFailed, err)
		}
		n.opts.logger().Info("stopped nginx", "pid", pid)
	}
	n.opts.PIDs.Remove(n.PIDPath())
	return nil
}

// Reload asks the running master to re-read its configuration.
func (n *Nginx) Reload(ctx context.Context) error {
	if !exists(n.Binary()) {
		return service.Errorf(service.OpReload, NginxID, service.ErrNotInstalled, "nginx binary not found at %s", n.Binary())
	}
	args := []string{"-c", n.ConfPath(), "-s", "reload"}
	if n.RequiresElevation() {
		if n.opts.Elevator == nil {
			return service.Errorf(service.OpReload, NginxID, service.ErrPrivilegeElevationFailed, "no elevation helper on this platform")
		}
		if err := n.opts.Elevator.Run(ctx, n.Binary(), args...); err != nil {
			return service.Wrap(service.OpReload, NginxID, service.ErrPrivilegeElevationFailed, err)
		}
	} else if _, err := n.run(ctx, args...); err != nil {
		return service.Wrap(service.OpReload, NginxID, service.ErrProcessSignalFailed, err)
	}
	n.opts.logger().Info("nginx reloaded")
	return nil
}

// TestConfig runs nginx -t and returns its report.
func (n *Nginx) TestConfig(ctx context.Context) (string, error) {
	if !exists(n.Binary()) {
		return "", service.Errorf(service.OpConfig, NginxID, service.ErrNotInstalled, "nginx binary not found at %s", n.Binary())
	}
	out, err := n.run(ctx, "-c", n.ConfPath(), "-t")
	if err != nil {
		return out, service.Wrap(service.OpConfig, NginxID, service.ErrConfigInvalid, err)
	}
	return out, nil
}

// run executes the nginx binary and returns its trimmed stderr, which is
// where nginx reports.
func (n *Nginx) run(ctx context.Context, args ...string) (string, error) {
	var stderr bytes.Buffer
	// #nosec G204
	cmd := exec.CommandContext(ctx, n.Binary(), args...)
	cmd.Stderr = &stderr
	cmd.Env = n.opts.environ()
	err := cmd.Run()
	out := strings.TrimSpace(stderr.String())
	if err != nil && out != "" {
		return out, &commandError{err: err, msg: out}
	}
	return out, err
}

type commandError struct {
	err error
	msg string
}

func (e *commandError) Error() string { return e.msg }
func (e *commandError) Unwrap() error { return e.err }
