package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/lokcaldev/internal/logs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	streamBuf  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API listens on loopback; the desktop shell is served from another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

func fileQuery(c *gin.Context) (string, bool) {
	f := c.Query("file")
	if f == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "file query param required"})
		return "", false
	}
	return f, true
}

func (r *Router) handleLogList(c *gin.Context) {
	files, err := r.mgr.LogFiles().List()
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, files)
}

type readResp struct {
	File  string   `json:"file"`
	Lines []string `json:"lines"`
}

func (r *Router) handleLogRead(c *gin.Context) {
	file, ok := fileQuery(c)
	if !ok {
		return
	}
	n, err := intQuery(c, "lines", logs.DefaultReadLines)
	if err != nil {
		writeError(c, err)
		return
	}
	lines, err := r.mgr.LogFiles().Read(file, n)
	if err != nil {
		writeError(c, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(c, http.StatusOK, readResp{File: file, Lines: lines})
}

func (r *Router) handleLogClear(c *gin.Context) {
	file, ok := fileQuery(c)
	if !ok {
		return
	}
	if err := r.mgr.LogFiles().Clear(file); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type tailResp struct {
	Session string `json:"session"`
	Path    string `json:"path"`
}

func (r *Router) handleTailStart(c *gin.Context) {
	file, ok := fileQuery(c)
	if !ok {
		return
	}
	s, err := r.mgr.StartTail(file)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tailResp{Session: s.ID, Path: s.Path})
}

func (r *Router) handleTailStop(c *gin.Context) {
	r.mgr.StopTail()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleStream upgrades to a websocket and pushes every tailed line as a
// JSON frame until either side goes away.
func (r *Router) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id, lines, cancel := r.mgr.Hub().Subscribe(streamBuf)
	defer cancel()
	r.log.Debug("log stream subscribed", "subscriber", id)

	// The read side only exists to notice the peer closing.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(l); err != nil {
				r.log.Debug("log stream write failed", "subscriber", id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
