package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/aretw0/rewind/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	schema := domain.NewSchema()
	require.NoError(t, schema.DeclareRelationship(domain.Relationship{
		Type: "node", Key: "links", Cardinality: domain.ToMany,
	}))
	sessions := session.NewManager(memory.NewJournal(),
		session.WithWorkspaceOptions(rewind.WithSchema(schema)),
	)
	return NewHandler(sessions, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeHistory(t *testing.T, w *httptest.ResponseRecorder) domain.HistoryView {
	t.Helper()
	var resp domain.HistoryView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestServer_CombinesRepeatedSets(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "doc", ID: "d"}).Code)

	var w *httptest.ResponseRecorder
	for _, title := range []string{"A", "B", "C"} {
		w = do(t, h, "PUT", "/sessions/s1/entities/doc:d/title", SetRequest{Value: title})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	require.Len(t, decodeHistory(t, w).Steps, 1)

	require.Equal(t, http.StatusOK, do(t, h, "POST", "/sessions/s1/undo", nil).Code)
	w = do(t, h, "GET", "/sessions/s1/entities", nil)
	assert.NotContains(t, w.Body.String(), "title")
}

func TestServer_UndoRedoFlow(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "POST", "/sessions/s1", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, -1, decodeHistory(t, w).Current)

	w = do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "doc", ID: "d"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Distinct keys: consecutive sets of one key combine into a single entry.
	w = do(t, h, "PUT", "/sessions/s1/entities/doc:d/title", SetRequest{Value: "A"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, "PUT", "/sessions/s1/entities/doc:d/body", SetRequest{Value: "B"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hist := decodeHistory(t, w)
	require.Len(t, hist.Steps, 2)
	assert.True(t, hist.CanUndo)
	assert.False(t, hist.CanRedo)

	w = do(t, h, "POST", "/sessions/s1/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist = decodeHistory(t, w)
	assert.Equal(t, 0, hist.Current)
	assert.True(t, hist.CanRedo)

	w = do(t, h, "GET", "/sessions/s1/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []EntityView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "A", views[0].Attributes["title"])
	assert.NotContains(t, views[0].Attributes, "body")

	w = do(t, h, "POST", "/sessions/s1/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeHistory(t, w).Current)
}

func TestServer_ErrorMapping(t *testing.T) {
	h := newTestHandler(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/sessions/missing/undo", nil).Code)

	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, "POST", "/sessions/s1/undo", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, "POST", "/sessions/s1/redo", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "PUT", "/sessions/s1/limit", LimitRequest{Limit: 0}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "PUT", "/sessions/s1/entities/doc:nope/title", SetRequest{Value: "x"}).Code)

	req := httptest.NewRequest("PUT", "/sessions/s1/limit", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RelateAndLimit(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1", nil).Code)
	for _, id := range []string{"a", "b"} {
		require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "node", ID: id}).Code)
	}

	w := do(t, h, "POST", "/sessions/s1/relate", LinkRequest{Ref: "node:a", Key: "links", Peer: "node:b"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, decodeHistory(t, w).Steps, 1)

	w = do(t, h, "POST", "/sessions/s1/unrelate", LinkRequest{Ref: "node:a", Key: "links", Peer: "node:b"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, "PUT", "/sessions/s1/limit", LimitRequest{Limit: 1})
	require.Equal(t, http.StatusOK, w.Code)
	hist := decodeHistory(t, w)
	assert.Equal(t, 1, hist.Limit)
	assert.Len(t, hist.Steps, 1)

	w = do(t, h, "POST", "/sessions/s1/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeHistory(t, w).Steps)
}

func TestServer_SessionsAndJournal(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/b", nil).Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/a", nil).Code)

	w := do(t, h, "GET", "/sessions", nil)
	var ids []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ids))
	assert.Equal(t, []string{"a", "b"}, ids)

	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/a/entities", EntityRequest{Type: "doc", ID: "d"}).Code)
	require.Equal(t, http.StatusOK, do(t, h, "PUT", "/sessions/a/entities/doc:d/title", SetRequest{Value: "x"}).Code)

	w = do(t, h, "GET", "/sessions/a/journal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"added"`)

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/sessions/a", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/sessions/a/history", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "DELETE", "/sessions/a", nil).Code)
}

func TestServer_InfoHealthAndCORS(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	w = do(t, h, "GET", "/info", nil)
	assert.Contains(t, w.Body.String(), "rewind-http")

	w = do(t, h, "OPTIONS", "/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	h := NewHandler(session.NewManager(nil, session.WithMetrics(metrics)), WithGatherer(reg))

	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1", nil).Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "doc", ID: "d"}).Code)
	require.Equal(t, http.StatusOK, do(t, h, "PUT", "/sessions/s1/entities/doc:d/title", SetRequest{Value: "x"}).Code)

	w := do(t, h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rewind_history_events_total{kind="added"} 1`)

	assert.Equal(t, http.StatusNotFound, do(t, newTestHandler(t), "GET", "/metrics", nil).Code)
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	h := newTestHandler(t)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/events", nil).Code)
}

func TestSubscribeEvents_Session(t *testing.T) {
	h := newTestHandler(t)

	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1", nil).Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "doc", ID: "d"}).Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest("GET", "/events?session_id=s1", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	require.Equal(t, http.StatusOK, do(t, h, "PUT", "/sessions/s1/entities/doc:d/title", SetRequest{Value: "x"}).Code)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, `"session":"s1"`)
	assert.Contains(t, output, `"can_undo":true`)
	assert.Contains(t, output, `"name":"Set title"`)
	assert.NotContains(t, output, `"can_redo"`) // unchanged fields are omitted
}

func TestSubscribeEvents_DiffsFollowCommitOrder(t *testing.T) {
	var srv *Server
	h := newTestHandler(t, func(s *Server) { srv = s })
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/sessions/s1/entities", EntityRequest{Type: "doc", ID: "d"}).Code)

	ch, cancel := srv.Streams.Subscribe("s1")
	defer cancel()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/sessions/s1/entities/doc:d/k" + strconv.Itoa(i)
			assert.Equal(t, http.StatusOK, do(t, h, "PUT", path, SetRequest{Value: i}).Code)
		}(i)
	}
	wg.Wait()

	last := -1
	for i := 0; i < writers; i++ {
		var diff domain.HistoryDiff
		require.NoError(t, json.Unmarshal([]byte(<-ch), &diff))
		require.NotNil(t, diff.Current)
		assert.Greater(t, *diff.Current, last, "diff %d arrived out of order", i)
		last = *diff.Current
	}
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s1")
	assert.Equal(t, 1, sm.Subscribers("s1"))

	sm.Broadcast("s1", "hello")
	sm.Broadcast("other", "ignored")
	assert.Equal(t, "hello", <-ch)

	for i := 0; i < 20; i++ {
		sm.Broadcast("s1", "flood") // full buffer drops instead of blocking
	}
	cancel()
	assert.Equal(t, 0, sm.Subscribers("s1"))
}
