package manager

import (
	"context"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/service"
)

// ReloadNginx regenerates the config if needed and signals the master.
func (m *Manager) ReloadNginx(ctx context.Context) error {
	n := m.cat.Nginx()
	if _, err := n.EnsureConfig(); err != nil {
		return err
	}
	return n.Reload(ctx)
}

// TestNginxConfig validates the generated configuration.
func (m *Manager) TestNginxConfig(ctx context.Context) (string, error) {
	n := m.cat.Nginx()
	if _, err := n.EnsureConfig(); err != nil {
		return "", err
	}
	return n.TestConfig(ctx)
}

// InitializeDatabase creates the MariaDB data directory. It refuses while
// the server is running.
func (m *Manager) InitializeDatabase(ctx context.Context) error {
	db := m.cat.MariaDB()
	if info := db.Info(ctx); info.Status == service.StatusRunning {
		return service.Errorf(service.OpInitialize, db.ID(), service.ErrInvalidArgument, "stop mariadb before initializing")
	}
	if err := db.Initialize(ctx); err != nil {
		return err
	}
	_, err := m.reg.Update(db.ID(), func(i *service.Info) { i.Initialized = true })
	return err
}

// PHPVersions reports every known PHP version.
func (m *Manager) PHPVersions() []driver.PHPVersionInfo {
	fpms := m.cat.PHPFPMs()
	out := make([]driver.PHPVersionInfo, 0, len(fpms))
	for _, f := range fpms {
		out = append(out, f.VersionInfo())
	}
	return out
}

// ResolveDependencies runs the PHP-FPM resolution the web server start uses.
func (m *Manager) ResolveDependencies(ctx context.Context) []string {
	return m.resolver.Resolve(ctx)
}
