package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/lokcaldev/internal/service"
)

const PhpMyAdminID = "phpmyadmin"

// PhpMyAdmin has no process of its own; nginx serves it through PHP-FPM.
// It reads as running whenever it is installed.
type PhpMyAdmin struct {
	opts Options
}

func NewPhpMyAdmin(opts Options) *PhpMyAdmin { return &PhpMyAdmin{opts: opts} }

func (p *PhpMyAdmin) ID() string              { return PhpMyAdminID }
func (p *PhpMyAdmin) Name() string            { return "phpMyAdmin" }
func (p *PhpMyAdmin) Kind() Kind              { return KindPhpMyAdmin }
func (p *PhpMyAdmin) Port() *int              { return nil }
func (p *PhpMyAdmin) RequiresElevation() bool { return false }

func (p *PhpMyAdmin) Dir() string { return p.opts.paths().PhpMyAdmin }

func (p *PhpMyAdmin) Installed() bool { return exists(filepath.Join(p.Dir(), "index.php")) }

func (p *PhpMyAdmin) version() string {
	b, err := os.ReadFile(filepath.Join(p.Dir(), "VERSION"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (p *PhpMyAdmin) Info(context.Context) service.Info {
	info := service.New(p.ID(), p.Name(), nil)
	if p.Installed() {
		info.Installed = true
		info.Status = service.StatusRunning
		info.Version = service.StringPtr(p.version())
	}
	return info
}

func (p *PhpMyAdmin) Start(context.Context) (*Child, int, error) {
	if !p.Installed() {
		return nil, 0, service.Errorf(service.OpStart, PhpMyAdminID, service.ErrNotInstalled, "phpMyAdmin not found in %s", p.Dir())
	}
	return nil, 0, nil
}

func (p *PhpMyAdmin) Stop(context.Context) error { return nil }
