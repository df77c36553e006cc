package driver

import (
	"regexp"
	"strings"

	"github.com/loykin/lokcaldev/internal/service"
)

var phpVersionIDRE = regexp.MustCompile(`^\d+\.\d+$`)

// Catalog resolves service ids to drivers.
type Catalog struct {
	opts Options

	nginx      *Nginx
	mariadb    *MariaDB
	phpmyadmin *PhpMyAdmin
}

func NewCatalog(opts Options) *Catalog {
	return &Catalog{
		opts:       opts,
		nginx:      NewNginx(opts),
		mariadb:    NewMariaDB(opts),
		phpmyadmin: NewPhpMyAdmin(opts),
	}
}

func (c *Catalog) Nginx() *Nginx           { return c.nginx }
func (c *Catalog) MariaDB() *MariaDB       { return c.mariadb }
func (c *Catalog) PhpMyAdmin() *PhpMyAdmin { return c.phpmyadmin }

// PHPFPM returns the driver for one PHP version.
func (c *Catalog) PHPFPM(version string) *PHPFPM { return NewPHPFPM(c.opts, version) }

// PHPFPMs returns a driver per known PHP version, in configured order.
func (c *Catalog) PHPFPMs() []*PHPFPM {
	versions := c.opts.Config.KnownPHPVersions()
	out := make([]*PHPFPM, 0, len(versions))
	for _, v := range versions {
		out = append(out, c.PHPFPM(v))
	}
	return out
}

// Defaults are the services registered at startup.
func (c *Catalog) Defaults() []Driver {
	return []Driver{c.nginx, c.mariadb, c.phpmyadmin}
}

// Lookup is the only place a service id is parsed.
func (c *Catalog) Lookup(id string) (Driver, error) {
	switch id {
	case NginxID:
		return c.nginx, nil
	case MariaDBID:
		return c.mariadb, nil
	case PhpMyAdminID:
		return c.phpmyadmin, nil
	}
	if v, ok := strings.CutPrefix(id, PHPFPMPrefix); ok && phpVersionIDRE.MatchString(v) {
		return c.PHPFPM(v), nil
	}
	return nil, service.Errorf(service.OpGet, id, service.ErrNotFound, "unknown service %q", id)
}
