package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loykin/lokcaldev"
)

type command struct {
	in    io.Reader
	out   io.Writer
	flags *GlobalFlags
}

// client returns an API client for the configured daemon. The URL comes from
// --api-url, else from [server] in the config file, else the default.
func (c *command) client() (*APIClient, error) {
	apiURL := c.flags.APIUrl
	if apiURL == "" {
		if cfg, err := lokcaldev.LoadConfig(c.flags.ConfigPath); err == nil {
			apiURL = "http://" + cfg.Server.Listen + cfg.Server.BasePath
		}
	}
	token := c.flags.Token
	if token == "" {
		token = os.Getenv("LOKCALDEV_TOKEN")
	}
	cl := NewAPIClient(apiURL, c.flags.APITimeout).WithToken(token)
	if !cl.IsReachable() {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'lokcaldev serve'", cl.baseURL)
	}
	return cl, nil
}

// password returns f.Password or the first line of stdin.
func (c *command) password(f AuthFlags) (string, error) {
	if f.Password != "" {
		return f.Password, nil
	}
	if c.in == nil {
		return "", errors.New("password required")
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}

// AuthHash prints the bcrypt hash for server.auth.password_hash.
func (c *command) AuthHash(f AuthFlags) error {
	pw, err := c.password(f)
	if err != nil {
		return err
	}
	h, err := lokcaldev.HashPassword(pw)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, h)
	return nil
}

// AuthLogin prints a bearer token for use with --token or LOKCALDEV_TOKEN.
func (c *command) AuthLogin(f AuthFlags) error {
	pw, err := c.password(f)
	if err != nil {
		return err
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	tok, err := cl.Login(pw)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		return c.printJSON(tok)
	}
	_, _ = fmt.Fprintln(c.out, tok.Value)
	return nil
}

func (c *command) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref[T any](p *T, none string) string {
	if p == nil {
		return none
	}
	return fmt.Sprint(*p)
}

func (c *command) printServices(list []lokcaldev.Info) error {
	if c.flags.JSON {
		return c.printJSON(list)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPID\tPORT\tVERSION\tINSTALLED")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.ID, s.Name, s.Status, deref(s.PID, "-"), deref(s.Port, "-"), deref(s.Version, "-"), s.Installed)
	}
	return tw.Flush()
}

func (c *command) Status(id string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if id == "" {
		list, err := cl.ListServices()
		if err != nil {
			return err
		}
		return c.printServices(list)
	}
	info, err := cl.GetService(id)
	if err != nil {
		return err
	}
	return c.printServices([]lokcaldev.Info{info})
}

// Lifecycle runs op (start, stop, restart) against id.
func (c *command) Lifecycle(op, id string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	info, err := cl.Lifecycle(op, id)
	if err != nil {
		return err
	}
	return c.printServices([]lokcaldev.Info{info})
}

func (c *command) PHPVersions() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	versions, err := cl.PHPVersions()
	if err != nil {
		return err
	}
	if c.flags.JSON {
		return c.printJSON(versions)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tINSTALLED\tRUNNING\tPORT\tPID")
	for _, v := range versions {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%t\t%d\t%s\n", v.Version, v.Installed, v.Running, v.Port, deref(v.PID, "-"))
	}
	return tw.Flush()
}

func (c *command) NginxReload() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.ReloadNginx(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, "nginx reloaded")
	return nil
}

func (c *command) NginxTest() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	out, err := cl.TestNginx()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, out)
	return nil
}

func (c *command) MariaDBInit() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.InitializeDatabase(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, "mariadb data directory initialized")
	return nil
}

func (c *command) History(id string, f HistoryFlags) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	events, err := cl.History(id, f.Limit)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		return c.printJSON(events)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tTYPE\tSERVICE\tPID\tSTATUS\tERROR")
	for _, e := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime), e.Type, e.Record.ServiceID, e.Record.PID, e.Record.Status, e.Record.Error)
	}
	return tw.Flush()
}

func (c *command) LogsList() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	files, err := cl.ListLogs()
	if err != nil {
		return err
	}
	if c.flags.JSON {
		return c.printJSON(files)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE")
	for _, f := range files {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", f.Name, f.Size)
	}
	return tw.Flush()
}

func (c *command) LogsRead(file string, f LogsFlags) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	lines, err := cl.ReadLog(file, f.Lines)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		_, _ = fmt.Fprintln(c.out, strings.Join(lines, "\n"))
	}
	return nil
}

func (c *command) LogsClear(file string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	return cl.ClearLog(file)
}

// LogsTail starts a tail session on the daemon and prints streamed lines
// until interrupted, then stops the session.
func (c *command) LogsTail(file string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	stream, err := cl.OpenStream()
	if err != nil {
		return err
	}
	if err := cl.StartTail(file); err != nil {
		_ = stream.Close()
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	var once sync.Once
	closeStream := func() { once.Do(func() { _ = stream.Close() }) }
	interrupted := make(chan struct{})
	go func() {
		<-sig
		close(interrupted)
		closeStream()
	}()

	for {
		l, err := stream.Next()
		if err != nil {
			closeStream()
			stopErr := cl.StopTail()
			select {
			case <-interrupted:
				return stopErr
			default:
			}
			if errors.Is(err, io.EOF) {
				return stopErr
			}
			return err
		}
		_, _ = fmt.Fprintln(c.out, l.Line)
	}
}
