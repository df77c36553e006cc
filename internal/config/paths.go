package config

import "path/filepath"

// Paths is the on-disk layout of the data directory.
type Paths struct {
	Root       string
	Config     string // <root>/config
	NginxConf  string // <root>/config/nginx
	Logs       string // <root>/logs
	Binaries   string // <root>/binaries
	Data       string // <root>/data
	Sites      string // <root>/sites
	PhpMyAdmin string // <root>/phpmyadmin
	WWW        string // <root>/www
}

func NewPaths(root string) Paths {
	cfg := filepath.Join(root, "config")
	return Paths{
		Root:       root,
		Config:     cfg,
		NginxConf:  filepath.Join(cfg, "nginx"),
		Logs:       filepath.Join(root, "logs"),
		Binaries:   filepath.Join(root, "binaries"),
		Data:       filepath.Join(root, "data"),
		Sites:      filepath.Join(root, "sites"),
		PhpMyAdmin: filepath.Join(root, "phpmyadmin"),
		WWW:        filepath.Join(root, "www"),
	}
}

func (p Paths) NginxDir() string             { return filepath.Join(p.Binaries, "nginx") }
func (p Paths) MariaDBDir() string           { return filepath.Join(p.Binaries, "mariadb") }
func (p Paths) PHPDir(version string) string { return filepath.Join(p.Binaries, "php", version) }

// HistoryDB is the default SQLite history database.
func (p Paths) HistoryDB() string { return filepath.Join(p.Data, "history.db") }

// Dirs lists every directory the supervisor expects to exist.
func (p Paths) Dirs() []string {
	return []string{p.Config, p.NginxConf, p.Logs, p.Binaries, p.Data, p.Sites, p.PhpMyAdmin, p.WWW}
}
