package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/renameio/v2/maybe"

	"github.com/loykin/lokcaldev/internal/config"
	"github.com/loykin/lokcaldev/internal/service"
)

// PHPFPMPrefix prefixes the service id of every PHP-FPM instance.
const PHPFPMPrefix = "php-fpm-"

// PHPFPMID returns the service id for a PHP version.
func PHPFPMID(version string) string { return PHPFPMPrefix + version }

func phpFPMBinary(p config.Paths, version string) string {
	return filepath.Join(p.PHPDir(version), "sbin", "php-fpm")
}

func phpFPMPIDPath(p config.Paths, version string) string {
	return filepath.Join(p.Data, "php-fpm-"+version+".pid")
}

// PHPFPM drives one PHP-FPM master for a single PHP version.
type PHPFPM struct {
	opts    Options
	version string
}

func NewPHPFPM(opts Options, version string) *PHPFPM {
	return &PHPFPM{opts: opts, version: version}
}

func (f *PHPFPM) ID() string              { return PHPFPMID(f.version) }
func (f *PHPFPM) Name() string            { return "PHP-FPM " + f.version }
func (f *PHPFPM) Kind() Kind              { return KindPHPFPM }
func (f *PHPFPM) Version() string         { return f.version }
func (f *PHPFPM) ListenPort() int         { return f.opts.Config.PHPFPMPort(f.version) }
func (f *PHPFPM) Port() *int              { return service.IntPtr(f.ListenPort()) }
func (f *PHPFPM) RequiresElevation() bool { return false }

func (f *PHPFPM) Binary() string  { return phpFPMBinary(f.opts.paths(), f.version) }
func (f *PHPFPM) PIDPath() string { return phpFPMPIDPath(f.opts.paths(), f.version) }
func (f *PHPFPM) ConfPath() string {
	return filepath.Join(f.opts.paths().Config, "php-fpm-"+f.version+".conf")
}
func (f *PHPFPM) LogPath() string {
	return filepath.Join(f.opts.paths().Logs, "php-fpm-"+f.version+".log")
}

func (f *PHPFPM) Installed() bool { return exists(f.Binary()) }

func (f *PHPFPM) Info(ctx context.Context) service.Info {
	if !f.Installed() {
		return observed(f, false, false, "", false, 0)
	}
	alive, pid := f.opts.PIDs.ReadAndValidate(f.PIDPath())
	version := phpVersion(probeOutput(ctx, f.Binary(), "-v"))
	return observed(f, true, false, version, alive, pid)
}

// Running probes the PID file only, without the version query Info runs.
func (f *PHPFPM) Running() (bool, int) {
	return f.opts.PIDs.ReadAndValidate(f.PIDPath())
}

func (f *PHPFPM) poolConfig() string {
	return fmt.Sprintf(`[global]
pid = %s
error_log = %s
log_level = notice
daemonize = no

[www]
listen = 127.0.0.1:%d
pm = dynamic
pm.max_children = 5
pm.start_servers = 2
pm.min_spare_servers = 1
pm.max_spare_servers = 3
`, f.PIDPath(), f.LogPath(), f.ListenPort())
}

// writeConfig regenerates the pool config so the listen port always matches.
func (f *PHPFPM) writeConfig() error {
	p := f.opts.paths()
	for _, dir := range []string{p.Config, p.Logs, p.Data} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return service.Wrap(service.OpConfig, f.ID(), service.ErrConfigWriteFailed, err)
		}
	}
	if err := maybe.WriteFile(f.ConfPath(), []byte(f.poolConfig()), 0o644); err != nil {
		return service.Wrap(service.OpConfig, f.ID(), service.ErrConfigWriteFailed, err)
	}
	return nil
}

func (f *PHPFPM) Start(context.Context) (*Child, int, error) {
	if !f.Installed() {
		return nil, 0, service.Errorf(service.OpStart, f.ID(), service.ErrNotInstalled, "php-fpm %s not found at %s", f.version, f.Binary())
	}
	if err := f.writeConfig(); err != nil {
		return nil, 0, err
	}
	if alive, pid := f.Running(); alive {
		return nil, pid, nil
	}
	// #nosec G204
	cmd := exec.Command(f.Binary(), "--fpm-config", f.ConfPath(), "--nodaemonize")
	cmd.Env = f.opts.environ()
	child, err := spawn(cmd, f.opts.Output.Writer(f.ID()+"-output"))
	if err != nil {
		return nil, 0, service.Wrap(service.OpStart, f.ID(), service.ErrProcessSpawnFailed, err)
	}
	f.opts.PIDs.Write(f.PIDPath(), child.PID())
	f.opts.logger().Info("started php-fpm", "version", f.version, "pid", child.PID(), "port", f.ListenPort())
	return child, child.PID(), nil
}

func (f *PHPFPM) Stop(context.Context) error {
	return stopByPIDFile(f.opts, f.ID(), f.PIDPath())
}

// PHPVersionInfo is one row of the PHP version listing.
type PHPVersionInfo struct {
	Version   string  `json:"version"`
	Installed bool    `json:"installed"`
	Running   bool    `json:"running"`
	Port      int     `json:"port"`
	PID       *int    `json:"pid"`
	Path      *string `json:"path"`
}

// VersionInfo summarises this version without spawning anything.
func (f *PHPFPM) VersionInfo() PHPVersionInfo {
	out := PHPVersionInfo{Version: f.version, Port: f.ListenPort(), Installed: f.Installed()}
	if !out.Installed {
		return out
	}
	out.Path = service.StringPtr(f.opts.paths().PHPDir(f.version))
	if alive, pid := f.Running(); alive {
		out.Running = true
		out.PID = service.IntPtr(pid)
	}
	return out
}
