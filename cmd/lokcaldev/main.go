package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the command tree reading passwords from in and writing
// human output to out.
func buildRoot(in io.Reader, out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := &command{in: in, out: out, flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(cmd),
		createLifecycleCommand(cmd, "start", "Start a service"),
		createLifecycleCommand(cmd, "stop", "Stop a service"),
		createLifecycleCommand(cmd, "restart", "Stop then start a service"),
		createLogsCommand(cmd),
		createPHPCommand(cmd),
		createNginxCommand(cmd),
		createMariaDBCommand(cmd),
		createHistoryCommand(cmd),
		createAuthCommand(cmd),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "lokcaldev",
		Short: "Local PHP development stack supervisor",
		Long: `lokcaldev runs Nginx, MariaDB, PHP-FPM and phpMyAdmin for local
development and exposes them through a small HTTP API.

Examples:
  lokcaldev serve                       # Start the daemon
  lokcaldev status                      # List services
  lokcaldev start nginx                 # Start nginx and the PHP-FPM pools it needs
  lokcaldev logs tail nginx-error.log   # Follow a log file`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to settings.toml (default <data_dir>/config/settings.toml)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://127.0.0.1:7780/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 60*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&flags.Token, "token", "", "bearer token from 'lokcaldev auth login' (default $LOKCALDEV_TOKEN)")
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "print JSON instead of tables")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lokcaldev daemon",
		Long: `Start the daemon: the HTTP API, the optional metrics listener and, when
auto_start_services is set, the services in auto_start_list. SIGINT or
SIGTERM stops every service before exiting.

Examples:
  lokcaldev serve
  lokcaldev serve --config ./settings.toml
  lokcaldev serve --daemonize --pid-file /tmp/lokcaldev.pid --logfile /tmp/lokcaldev.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags, *f)
		},
	}
	cmd.Flags().BoolVarP(&f.Daemonize, "daemonize", "d", false, "run as daemon in background")
	cmd.Flags().StringVar(&f.PidFile, "pid-file", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "write daemon logs to this file")
	cmd.Flags().BoolVar(&f.NoAuto, "no-auto-start", false, "skip auto_start_list")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Show service status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return c.Status(id)
		},
	}
}

func createLifecycleCommand(c *command, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <id>",
		Short: short,
		Long: short + `.

Service ids: nginx, mariadb, phpmyadmin, php-fpm-<version> (e.g. php-fpm-8.3).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Lifecycle(op, args[0])
		},
	}
}

func createLogsCommand(c *command) *cobra.Command {
	f := &LogsFlags{}
	logs := &cobra.Command{
		Use:   "logs",
		Short: "List, read, clear and follow log files",
	}
	read := &cobra.Command{
		Use:   "read <file>",
		Short: "Print the last lines of a log file",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return c.LogsRead(args[0], *f) },
	}
	read.Flags().IntVarP(&f.Lines, "lines", "n", 500, "number of lines")
	logs.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List log files",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return c.LogsList() },
		},
		read,
		&cobra.Command{
			Use:   "clear <file>",
			Short: "Truncate a log file",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return c.LogsClear(args[0]) },
		},
		&cobra.Command{
			Use:   "tail <file>",
			Short: "Follow a log file until interrupted",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return c.LogsTail(args[0]) },
		},
	)
	return logs
}

func createPHPCommand(c *command) *cobra.Command {
	php := &cobra.Command{Use: "php", Short: "PHP runtimes"}
	php.AddCommand(&cobra.Command{
		Use:   "versions",
		Short: "List known PHP versions",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.PHPVersions() },
	})
	return php
}

func createNginxCommand(c *command) *cobra.Command {
	nginx := &cobra.Command{Use: "nginx", Short: "Web server configuration"}
	nginx.AddCommand(
		&cobra.Command{
			Use:   "reload",
			Short: "Regenerate the config if needed and reload nginx",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return c.NginxReload() },
		},
		&cobra.Command{
			Use:   "test",
			Short: "Validate the nginx configuration",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return c.NginxTest() },
		},
	)
	return nginx
}

func createMariaDBCommand(c *command) *cobra.Command {
	db := &cobra.Command{Use: "mariadb", Short: "Database server"}
	db.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the MariaDB data directory",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.MariaDBInit() },
	})
	return db
}

func createHistoryCommand(c *command) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show recent lifecycle events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return c.History(id, *f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of events")
	return cmd
}

func createAuthCommand(c *command) *cobra.Command {
	f := &AuthFlags{}
	a := &cobra.Command{
		Use:   "auth",
		Short: "API password and tokens",
		Long: `Protect the API by setting [server.auth] in settings.toml:

  [server.auth]
  enabled = true
  password_hash = "<output of lokcaldev auth hash>"
  jwt_secret = "<at least 16 random characters>"

The password is read from --password or the first line of stdin.`,
	}
	a.PersistentFlags().StringVar(&f.Password, "password", "", "password (default: read from stdin)")
	a.AddCommand(
		&cobra.Command{
			Use:   "hash",
			Short: "Print the bcrypt hash of a password",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return c.AuthHash(*f) },
		},
		&cobra.Command{
			Use:   "login",
			Short: "Exchange the password for a bearer token",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return c.AuthLogin(*f) },
		},
	)
	return a
}
