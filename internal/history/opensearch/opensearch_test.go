package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lokcaldev/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL+"/", "service-history")
	evt := history.Event{
		Type:       history.EventRestart,
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Record:     history.Record{ServiceID: "nginx", Name: "Nginx", PID: 7, Status: "running"},
	}
	require.NoError(t, sink.Send(context.Background(), evt))
	assert.Equal(t, "/service-history/_doc", gotPath)

	var decoded history.Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{})
	assert.ErrorContains(t, err, "400")
}
