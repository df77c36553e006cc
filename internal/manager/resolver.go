package manager

import (
	"context"
	"log/slog"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/site"
)

// Resolver makes sure the PHP-FPM pools the web server forwards to are up
// before it starts. It never fails the caller: problems are logged.
type Resolver struct {
	Sites   site.Lister
	Catalog *driver.Catalog
	Start   func(ctx context.Context, id string) error
	Log     *slog.Logger
}

// Resolve starts every installed version used by an active site. When none of
// those versions ends up running it starts the first installed version that
// is not running yet. It returns the site versions found or left running, or
// the fallback version.
func (r *Resolver) Resolve(ctx context.Context) []string {
	var sites []site.Site
	if r.Sites != nil {
		var err error
		if sites, err = r.Sites.List(ctx); err != nil {
			r.Log.Warn("listing sites failed, assuming none", "error", err)
			sites = nil
		}
	}

	var running []string
	for _, v := range site.ActivePHPVersions(sites) {
		d, err := r.Catalog.Lookup(driver.PHPFPMID(v))
		fpm, ok := d.(*driver.PHPFPM)
		if err != nil || !ok {
			r.Log.Warn("site references unknown php version", "version", v)
			continue
		}
		if ok, _ := fpm.Running(); ok {
			running = append(running, v)
			continue
		}
		if !fpm.Installed() {
			r.Log.Warn("php version required by a site is not installed", "version", v)
			continue
		}
		if err := r.Start(ctx, fpm.ID()); err != nil {
			r.Log.Warn("starting php-fpm for sites failed", "version", v, "error", err)
			continue
		}
		running = append(running, v)
	}

	if len(running) > 0 {
		return running
	}

	for _, fpm := range r.Catalog.PHPFPMs() {
		if !fpm.Installed() {
			continue
		}
		if ok, _ := fpm.Running(); ok {
			continue
		}
		if err := r.Start(ctx, fpm.ID()); err != nil {
			r.Log.Warn("starting fallback php-fpm failed", "version", fpm.Version(), "error", err)
			return nil
		}
		r.Log.Info("started fallback php-fpm", "version", fpm.Version())
		return []string{fpm.Version()}
	}
	r.Log.Warn("no idle php-fpm installed to start as default")
	return nil
}
