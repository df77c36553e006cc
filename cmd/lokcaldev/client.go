package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loykin/lokcaldev"
)

const defaultAPIURL = "http://127.0.0.1:7780/api"

// APIClient talks to a running lokcaldev daemon.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("API error (%d): %s", e.Status, e.Message) }

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithToken sends token as a bearer credential on every request.
func (c *APIClient) WithToken(token string) *APIClient {
	c.token = token
	return c
}

func (c *APIClient) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// IsReachable checks if the daemon answers the service listing.
// A 401 still counts: the daemon is up and the caller needs a token.
func (c *APIClient) IsReachable() bool {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/services", nil)
	if err != nil {
		return false
	}
	req.Header = c.authHeader()
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized
}

func (c *APIClient) do(method, path string, q url.Values, out any) error {
	return c.doBody(method, path, q, nil, out)
}

func (c *APIClient) doBody(method, path string, q url.Values, in, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return err
	}
	req.Header = c.authHeader()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorResp struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &errorResp) != nil || errorResp.Error == "" {
			errorResp.Error = strings.TrimSpace(string(body))
		}
		return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login exchanges the daemon password for a bearer token.
func (c *APIClient) Login(password string) (lokcaldev.Token, error) {
	var out lokcaldev.Token
	err := c.doBody(http.MethodPost, "/auth/login", nil, lokcaldev.LoginRequest{Password: password}, &out)
	return out, err
}

func (c *APIClient) ListServices() ([]lokcaldev.Info, error) {
	var out []lokcaldev.Info
	err := c.do(http.MethodGet, "/services", nil, &out)
	return out, err
}

func (c *APIClient) GetService(id string) (lokcaldev.Info, error) {
	var out lokcaldev.Info
	err := c.do(http.MethodGet, "/services/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Lifecycle runs start, stop or restart and returns the resulting state.
func (c *APIClient) Lifecycle(op, id string) (lokcaldev.Info, error) {
	var out lokcaldev.Info
	err := c.do(http.MethodPost, "/services/"+url.PathEscape(id)+"/"+op, nil, &out)
	return out, err
}

func (c *APIClient) PHPVersions() ([]lokcaldev.PHPVersionInfo, error) {
	var out []lokcaldev.PHPVersionInfo
	err := c.do(http.MethodGet, "/php/versions", nil, &out)
	return out, err
}

func (c *APIClient) ReloadNginx() error {
	return c.do(http.MethodPost, "/nginx/reload", nil, nil)
}

func (c *APIClient) TestNginx() (string, error) {
	var out struct {
		Output string `json:"output"`
	}
	err := c.do(http.MethodPost, "/nginx/test", nil, &out)
	return out.Output, err
}

func (c *APIClient) InitializeDatabase() error {
	return c.do(http.MethodPost, "/mariadb/initialize", nil, nil)
}

func (c *APIClient) History(id string, limit int) ([]lokcaldev.HistoryEvent, error) {
	q := url.Values{}
	if id != "" {
		q.Set("service", id)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []lokcaldev.HistoryEvent
	err := c.do(http.MethodGet, "/history", q, &out)
	return out, err
}

func (c *APIClient) ListLogs() ([]lokcaldev.LogFile, error) {
	var out []lokcaldev.LogFile
	err := c.do(http.MethodGet, "/logs", nil, &out)
	return out, err
}

func (c *APIClient) ReadLog(file string, lines int) ([]string, error) {
	q := url.Values{"file": {file}}
	if lines > 0 {
		q.Set("lines", strconv.Itoa(lines))
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.do(http.MethodGet, "/logs/read", q, &out)
	return out.Lines, err
}

func (c *APIClient) ClearLog(file string) error {
	return c.do(http.MethodPost, "/logs/clear", url.Values{"file": {file}}, nil)
}

func (c *APIClient) StartTail(file string) error {
	return c.do(http.MethodPost, "/logs/tail", url.Values{"file": {file}}, nil)
}

func (c *APIClient) StopTail() error {
	return c.do(http.MethodDelete, "/logs/tail", nil, nil)
}

// LogStream is an open websocket subscription to tailed lines.
type LogStream struct {
	conn *websocket.Conn
}

// OpenStream subscribes to the daemon's log stream.
func (c *APIClient) OpenStream() (*LogStream, error) {
	u, err := url.Parse(c.baseURL + "/logs/stream")
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), c.authHeader())
	if err != nil {
		return nil, err
	}
	return &LogStream{conn: conn}, nil
}

// Next blocks for the next line. io.EOF marks a clean close.
func (s *LogStream) Next() (lokcaldev.LogLine, error) {
	var l lokcaldev.LogLine
	if err := s.conn.ReadJSON(&l); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return l, io.EOF
		}
		return l, fmt.Errorf("reading log stream: %w", err)
	}
	return l, nil
}

func (s *LogStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
