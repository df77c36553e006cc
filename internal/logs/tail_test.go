package logs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu    sync.Mutex
	lines []LogLine
}

func (c *collector) add(l LogLine) {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
}

func (c *collector) snapshot() []LogLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogLine(nil), c.lines...)
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestSessionEmitsExistingAndAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.log")
	appendFile(t, path, "one\ntwo\n")

	var c collector
	s := NewSession(path, 20*time.Millisecond, c.add, nil)
	s.Start()
	t.Cleanup(func() { s.Stop(); _ = s.Wait() })

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, LogLine{File: "svc.log", Line: "one"}, c.snapshot()[0])

	appendFile(t, path, "three\r\nfou")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, c.snapshot(), 3, "partial line is held back")
	assert.Equal(t, "three", c.snapshot()[2].Line)

	appendFile(t, path, "r\n")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "four", c.snapshot()[3].Line)
}

func TestSessionStopEndsEmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.log")
	appendFile(t, path, "a\n")

	var c collector
	s := NewSession(path, 20*time.Millisecond, c.add, nil)
	s.Start()
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	require.NoError(t, s.Wait())
	appendFile(t, path, "b\n")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestSessionStoppedBeforeStartNeverRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.log")
	appendFile(t, path, "a\n")

	var c collector
	s := NewSession(path, 20*time.Millisecond, c.add, nil)
	s.Stop()
	s.Start()
	require.NoError(t, s.Wait())
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestSessionMissingFileWaitsForCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.log")
	var c collector
	s := NewSession(path, 20*time.Millisecond, c.add, nil)
	s.Start()
	t.Cleanup(func() { s.Stop(); _ = s.Wait() })

	time.Sleep(50 * time.Millisecond)
	appendFile(t, path, "hello\n")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionTruncatedFileWaitsForOldOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.log")
	appendFile(t, path, "0123456789\npart")

	var c collector
	s := NewSession(path, 20*time.Millisecond, c.add, nil)
	s.Start()
	t.Cleanup(func() { s.Stop(); _ = s.Wait() })
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Truncate(path, 0))
	time.Sleep(100 * time.Millisecond)
	appendFile(t, path, "xy\n")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1, "nothing is emitted below the old offset")

	// Offset was 15; bytes from there on are "m\n".
	appendFile(t, path, "abcdefghijklm\n")
	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m", c.snapshot()[1].Line, "partial line from before the truncation is dropped")
}

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	_, a, cancelA := h.Subscribe(1)
	_, b, cancelB := h.Subscribe(4)
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(LogLine{File: "f", Line: "1"})
	h.Publish(LogLine{File: "f", Line: "2"})
	assert.Equal(t, "1", (<-a).Line)
	assert.Equal(t, "1", (<-b).Line)
	assert.Equal(t, "2", (<-b).Line)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok, "channel closed on cancel")
	cancelB()
	assert.Zero(t, h.Subscribers())
	h.Publish(LogLine{})
}
