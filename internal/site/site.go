// Package site reads the site registry: one TOML file per site under the
// sites directory. Only the fields the supervisor consumes are modelled.
package site

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Site is one local development site.
type Site struct {
	ID           string `toml:"id" mapstructure:"id" json:"id"`
	Name         string `toml:"name" mapstructure:"name" json:"name"`
	Domain       string `toml:"domain" mapstructure:"domain" json:"domain"`
	DocumentRoot string `toml:"document_root" mapstructure:"document_root" json:"documentRoot"`
	PHPVersion   string `toml:"php_version" mapstructure:"php_version" json:"phpVersion"`
	SSL          bool   `toml:"ssl" mapstructure:"ssl" json:"ssl"`
	Active       bool   `toml:"active" mapstructure:"active" json:"active"`
	CreatedAt    string `toml:"created_at" mapstructure:"created_at" json:"createdAt"`
}

// Lister is what the dependency resolver needs from the registry.
type Lister interface {
	List(ctx context.Context) ([]Site, error)
}

// Registry lists sites stored as <Dir>/<id>.toml.
type Registry struct {
	Dir string
	Log *slog.Logger
}

func NewRegistry(dir string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{Dir: dir, Log: log}
}

// List returns all parseable sites sorted by name. Unparseable files are
// skipped with a warning; a missing directory yields no sites.
func (r *Registry) List(ctx context.Context) ([]Site, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sites dir: %w", err)
	}
	var sites []Site
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(r.Dir, e.Name())
		s, err := load(path)
		if err != nil {
			r.Log.Warn("skipping unreadable site", "path", path, "error", err)
			continue
		}
		if s.ID == "" {
			s.ID = strings.TrimSuffix(e.Name(), ".toml")
		}
		sites = append(sites, s)
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

// Get returns the site stored under id.
func (r *Registry) Get(id string) (Site, error) {
	path := filepath.Join(r.Dir, id+".toml")
	s, err := load(path)
	if err != nil {
		return Site{}, err
	}
	if s.ID == "" {
		s.ID = id
	}
	return s, nil
}

func load(path string) (Site, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Site{}, err
	}
	var s Site
	if err := v.Unmarshal(&s); err != nil {
		return Site{}, err
	}
	return s, nil
}

// ActivePHPVersions returns the distinct PHP versions of active sites, in
// first-seen order.
func ActivePHPVersions(sites []Site) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sites {
		if !s.Active || s.PHPVersion == "" || seen[s.PHPVersion] {
			continue
		}
		seen[s.PHPVersion] = true
		out = append(out, s.PHPVersion)
	}
	return out
}
