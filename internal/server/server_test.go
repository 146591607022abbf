package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"hookrelay/internal/config"
	"hookrelay/internal/session"
	"hookrelay/internal/types"
)

type sseEvent struct {
	ID    string
	Event string
	Data  string
}

type streamClient struct {
	events chan sseEvent
	cancel context.CancelFunc
	resp   *http.Response
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.StaticDir = filepath.Join(t.TempDir(), "missing")
	if mutate != nil {
		mutate(cfg)
	}

	registry := session.NewRegistry(session.RegistryOptions{StreamBuffer: cfg.Stream.Buffer})
	s, err := NewWithRegistry(cfg, nil, registry)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Cleanup()
	})
	return s, ts
}

func openStream(t *testing.T, ts *httptest.Server) *streamClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c := &streamClient{events: make(chan sseEvent, 16), cancel: cancel, resp: resp}
	go c.read(bufio.NewReader(resp.Body))
	t.Cleanup(c.close)
	return c
}

func (c *streamClient) read(rd *bufio.Reader) {
	defer close(c.events)
	var ev sseEvent
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			c.events <- ev
			ev = sseEvent{}
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func (c *streamClient) close() {
	c.cancel()
	_ = c.resp.Body.Close()
}

func (c *streamClient) next(t *testing.T) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-c.events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func (c *streamClient) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev, ok := <-c.events:
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func (c *streamClient) start(t *testing.T) map[string]any {
	t.Helper()
	ev := c.next(t)
	require.Equal(t, "start", ev.Event)
	require.Equal(t, "0", ev.ID)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &payload))
	return payload
}

func decode(t *testing.T, data string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	return out
}

func postHook(t *testing.T, ts *httptest.Server, path, contentType, body string) (int, string) {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+path, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestStream_Headers(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)

	assert.Equal(t, "text/event-stream", c.resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", c.resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", c.resp.Header.Get("X-Accel-Buffering"))
	assert.Equal(t, "*", c.resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStream_StartsWithSessionID(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := openStream(t, ts)

	start := c.start(t)
	id, _ := start["sessionId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, ts.URL+"/hook/"+id, start["hookUrl"])
	assert.Equal(t, ts.URL+"/control/"+id, start["controlUrl"])

	_, ok := s.Registry.Find(id)
	assert.True(t, ok)
}

// Scenario A
func TestHook_CapturedAndAnswered(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	status, body := postHook(t, ts, "/hook/"+id, "text/plain", `{"x":1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, body)

	hookEv := c.next(t)
	assert.Equal(t, "hook", hookEv.Event)
	assert.Equal(t, "1", hookEv.ID)
	rec := decode(t, hookEv.Data)
	assert.Equal(t, float64(1), rec["hookId"])
	assert.Equal(t, "POST", rec["method"])
	assert.Equal(t, "/hook/"+id, rec["path"])
	assert.Equal(t, `{"x":1}`, rec["body"])

	respEv := c.next(t)
	assert.Equal(t, "hookResponse", respEv.Event)
	assert.Equal(t, "2", respEv.ID)
	published := decode(t, respEv.Data)
	assert.Equal(t, float64(1), published["hookId"])
	assert.Equal(t, float64(200), published["statusCode"])
	assert.Equal(t, map[string]any{"ok": true}, published["body"])
}

func TestHook_ReplyEqualsPublishedResponse(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	status, body := postHook(t, ts, "/hook/"+id+"/deliveries?attempt=1", "application/json", `{"data":"{\"id\":\"evt_42\"}"}`)
	c.next(t)
	published := decode(t, c.next(t).Data)

	assert.Equal(t, published["statusCode"], float64(status))
	encoded, err := json.Marshal(published["body"])
	require.NoError(t, err)
	assert.JSONEq(t, string(encoded), body)
	assert.JSONEq(t, `{"ok":true,"id":"evt_42"}`, body)
}

// Scenario B
func TestHook_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	c.start(t)

	status, body := postHook(t, ts, "/hook/does-not-exist", "application/json", `{}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid session id"}`, body)

	status, body = postHook(t, ts, "/hook/3f2b8c1e-9d4a-4e6b-8a7c-1b2d3e4f5a6b", "application/json", `{}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid session id"}`, body)

	c.expectNone(t)
}

func TestHook_MalformedURL(t *testing.T) {
	_, ts := newTestServer(t, nil)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for _, path := range []string{"/hook", "/hook/", "/hook//x", "/control", "/control/", "/control//x"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Post(ts.URL+path, "application/json", strings.NewReader(`{}`))
			require.NoError(t, err)
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid url"}`, string(data))
		})
	}

	resp, err := client.Post(ts.URL+"/hook/./abc", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid session id"}`, string(data))
}

// Scenario C
func TestHook_SessionsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c1 := openStream(t, ts)
	c2 := openStream(t, ts)
	id1 := c1.start(t)["sessionId"].(string)
	id2 := c2.start(t)["sessionId"].(string)
	require.NotEqual(t, id1, id2)

	postHook(t, ts, "/hook/"+id1, "application/json", `{"only":"s1"}`)

	assert.Equal(t, "hook", c1.next(t).Event)
	assert.Equal(t, "hookResponse", c1.next(t).Event)
	c2.expectNone(t)
}

// Scenario D
func TestHook_SequentialIDsAndLog(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	postHook(t, ts, "/hook/"+id+"/first", "text/plain", "one")
	postHook(t, ts, "/hook/"+id+"/second", "text/plain", "two")

	assert.Equal(t, float64(1), decode(t, c.next(t).Data)["hookId"])
	c.next(t)
	assert.Equal(t, float64(2), decode(t, c.next(t).Data)["hookId"])
	c.next(t)

	sess, ok := s.Registry.Find(id)
	require.True(t, ok)
	hooks, err := sess.Hooks(context.Background())
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "/hook/"+id+"/first", hooks[0].Path)
	assert.Equal(t, "/hook/"+id+"/second", hooks[1].Path)
}

// Scenario E
func TestHook_AfterStreamClosed(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	c.close()
	require.Eventually(t, func() bool {
		_, ok := s.Registry.Find(id)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	_, body := postHook(t, ts, "/hook/"+id, "application/json", `{}`)
	assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid session id"}`, body)
}

func TestHook_MethodNotCaptured(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	req, err := http.NewRequest(http.MethodHead, ts.URL+"/hook/"+id, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	c.expectNone(t)
}

func TestControl_ReportsState(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)
	postHook(t, ts, "/hook/"+id, "text/plain", "x")

	_, body := postHook(t, ts, "/control/"+id, "application/json", `{"includeHooks":true}`)
	out := decode(t, body)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, id, out["sessionId"])
	assert.Equal(t, float64(1), out["hookCount"])
	assert.Len(t, out["hooks"], 1)
}

func TestControl_PolicyUpdateChangesHookReply(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Control.EnablePolicyUpdates = true
	})
	c := openStream(t, ts)
	id := c.start(t)["sessionId"].(string)

	_, body := postHook(t, ts, "/control/"+id, "application/json", `{"statusCode":503}`)
	assert.Equal(t, float64(503), decode(t, body)["policy"].(map[string]any)["statusCode"])

	status, reply := postHook(t, ts, "/hook/"+id, "application/json", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Empty(t, reply)

	c.next(t)
	published := decode(t, c.next(t).Data)
	assert.Equal(t, float64(503), published["statusCode"])
	assert.Nil(t, published["body"])
}

func TestControl_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	_, body := postHook(t, ts, "/control/nope", "application/json", `{}`)
	assert.JSONEq(t, `{"ok":false,"errorMsg":"invalid session id"}`, body)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := openStream(t, ts)
	c.start(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"sessions":1}`, string(data))
}

func TestPreflight(t *testing.T) {
	_, ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/hook/anything", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestStatic_EmbeddedIndex(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, string(data), `data-stream="/stream"`)
	assert.Contains(t, string(data), "<title>hookrelay</title>")

	resp, err = ts.Client().Get(ts.URL + "/missing.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatic_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0o644))

	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.StaticDir = dir
	})

	resp, err := ts.Client().Get(ts.URL + "/app.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log('hi')", string(data))
}

func TestWebSocket_Stream(t *testing.T) {
	s, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	readFrame := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return decode(t, string(msg))
	}

	start := readFrame()
	assert.Equal(t, "start", start["event"])
	assert.Equal(t, "0", start["id"])
	id := start["data"].(map[string]any)["sessionId"].(string)

	postHook(t, ts, "/hook/"+id, "text/plain", "ping")
	hookFrame := readFrame()
	assert.Equal(t, "hook", hookFrame["event"])
	assert.Equal(t, "1", hookFrame["id"])
	assert.Equal(t, "hookResponse", readFrame()["event"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := s.Registry.Find(id)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdown_ReleasesSessionsOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := config.Default()
	cfg.StaticDir = filepath.Join(t.TempDir(), "missing")

	registry := session.NewRegistry(session.RegistryOptions{StreamBuffer: cfg.Stream.Buffer})
	s, err := NewWithRegistry(cfg, zap.New(core), registry)
	require.NoError(t, err)

	sess := registry.Create()
	sub, err := sess.Relay().Bind()
	require.NoError(t, err)

	servers := []*http.Server{
		s.newHTTPServer(0, s.Handler()),
		s.newHTTPServer(0, s.Handler()),
	}
	s.shutdown(servers)

	select {
	case <-sub.Done():
	default:
		t.Fatal("stream not released")
	}
	assert.Zero(t, registry.Len())
	assert.Equal(t, 1, logs.FilterMessage("🧹 Releasing sessions").Len())

	_, err = sess.RecordHook(context.Background(), types.HookRecord{})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
