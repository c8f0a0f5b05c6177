package http

import (
	"context"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinizap/mindmap/server/auth"
	"github.com/vinizap/mindmap/server/domain"
	"github.com/vinizap/mindmap/server/filesystem"
	"github.com/vinizap/mindmap/server/metrics"
	"github.com/vinizap/mindmap/server/store"
	"github.com/vinizap/mindmap/server/ws"
)

type testEnv struct {
	app   *fiber.App
	store *store.MemoryStore
	hub   *ws.Hub
}

type envOption func(*Options, *bool)

func withStrict() envOption { return func(_ *Options, strict *bool) { *strict = true } }

func withToken(token string) envOption {
	return func(o *Options, _ *bool) { o.Token = token }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub("test-server", zerolog.Nop())
	go hub.Run(ctx)

	options := Options{BodyLimit: 1 << 20}
	strict := false
	for _, o := range opts {
		o(&options, &strict)
	}

	st := store.New()
	srv := NewServer(st, hub, metrics.NewCollector("mindmap"), zerolog.Nop(), strict)

	return &testEnv{app: NewApp(srv, options), store: st, hub: hub}
}

func (e *testEnv) do(t *testing.T, req *nethttp.Request) (*nethttp.Response, string) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) get(t *testing.T, target string) (*nethttp.Response, string) {
	return e.do(t, httptest.NewRequest(fiber.MethodGet, target, nil))
}

func (e *testEnv) save(t *testing.T, body string) (*nethttp.Response, string) {
	req := httptest.NewRequest(fiber.MethodPost, "/save", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return e.do(t, req)
}

func TestIndexEmbedsDocument(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")
	assert.Contains(t, body, "Balance Sheet")
	assert.Contains(t, body, "JSON.parse(")
}

func TestIndexEmbedsCurrentDocument(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.save(t, `{"nodes": [{"id":"q","title":"Quarterly Review","subtitle":"","x":5,"y":5}], "connections": []}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body := env.get(t, "/")
	assert.Contains(t, body, "Quarterly Review")
	assert.NotContains(t, body, "Balance Sheet")
}

func TestIndexEscapesDocumentText(t *testing.T) {
	env := newTestEnv(t)

	hostile := `{"nodes": [{"id":"x","title":"</script><script>alert(1)</script>","subtitle":"say \"hi\" 'there'","x":0,"y":0}], "connections": []}`
	resp, _ := env.save(t, hostile)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body := env.get(t, "/")
	assert.NotContains(t, body, "<script>alert(1)")
	assert.Equal(t, 1, strings.Count(body, "</script>"), "only the page's own script tag may close")
	assert.NotContains(t, body, `say "hi"`)
}

func TestGetMindMapDefault(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/get_mind_map")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "application/json")

	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.NotEmpty(t, doc.Nodes)
	assert.Equal(t, "balance-sheet", doc.Nodes[0].ID)

	fromRoot := 0
	for _, c := range doc.Connections {
		if c.Source == "balance-sheet" {
			fromRoot++
		}
	}
	assert.Equal(t, 3, fromRoot)
	assert.Len(t, doc.Connections, 3)
}

func TestSaveScenarios(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "empty document",
			body: `{"nodes": [], "connections": []}`,
		},
		{
			name: "single node",
			body: `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}], "connections": []}`,
		},
		{
			name: "dangling edge is stored",
			body: `{"nodes": [{"id":"a","title":"A","subtitle":"","x":1,"y":2}], "connections": [{"source":"a","target":"ghost"}]}`,
		},
		{
			name: "order preserved",
			body: `{"nodes": [{"id":"z","title":"Z","subtitle":"","x":0,"y":0},{"id":"a","title":"A","subtitle":"s","x":10.5,"y":20}], "connections": [{"source":"z","target":"a"},{"source":"a","target":"z"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			resp, body := env.save(t, tt.body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tt.body, body)

			resp, body = env.get(t, "/get_mind_map")
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tt.body, body)
		})
	}
}

func TestSaveRejectsMalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":    `{"nodes": [`,
		"empty":       ``,
		"wrong types": `{"nodes": [{"id": 7, "x": "left"}], "connections": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)

			resp, respBody := env.save(t, body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, respBody, "invalid mind map")
			assert.Equal(t, domain.DefaultDocument(), env.store.Get())
		})
	}
}

func TestSaveMissingFieldsStoredAsZeroValues(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.save(t, `{"nodes": [{"id": "only"}], "connections": [{"source": "only"}]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"nodes": [{"id":"only","title":"","subtitle":"","x":0,"y":0}], "connections": [{"source":"only","target":""}]}`, body)
}

func TestSaveMissingListsBecomeEmpty(t *testing.T) {
	tests := map[string]struct {
		body string
		want string
	}{
		"no connections key": {
			body: `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}]}`,
			want: `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}], "connections": []}`,
		},
		"explicit nulls": {
			body: `{"nodes": null, "connections": null}`,
			want: `{"nodes": [], "connections": []}`,
		},
		"null body": {
			body: `null`,
			want: `{"nodes": [], "connections": []}`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)

			resp, body := env.save(t, tt.body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tt.want, body)

			_, body = env.get(t, "/get_mind_map")
			assert.JSONEq(t, tt.want, body)
		})
	}
}

func TestStrictSave(t *testing.T) {
	env := newTestEnv(t, withStrict())

	resp, body := env.save(t, `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}], "connections": [{"source":"a","target":"ghost"}]}`)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Error    string   `json:"error"`
		Problems []string `json:"problems"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, []string{`connections[0]: unknown target "ghost"`}, payload.Problems)
	assert.Equal(t, domain.DefaultDocument(), env.store.Get())

	valid := `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}], "connections": [{"source":"a","target":"a"}]}`
	resp, body = env.save(t, valid)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, valid, body)
}

func TestGetMindMapETag(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/get_mind_map")
	etag := resp.Header.Get(fiber.HeaderETag)
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(fiber.MethodGet, "/get_mind_map", nil)
	req.Header.Set(fiber.HeaderIfNoneMatch, etag)
	resp, _ = env.do(t, req)
	assert.Equal(t, fiber.StatusNotModified, resp.StatusCode)

	env.save(t, `{"nodes": [], "connections": []}`)

	req = httptest.NewRequest(fiber.MethodGet, "/get_mind_map", nil)
	req.Header.Set(fiber.HeaderIfNoneMatch, etag)
	resp, body := env.do(t, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEqual(t, etag, resp.Header.Get(fiber.HeaderETag))
	assert.JSONEq(t, `{"nodes": [], "connections": []}`, body)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"abc"`, `"abc"`))
	assert.True(t, etagMatches(`"x", W/"abc"`, `"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(``, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}

func TestExportIsLoadableSeed(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/export")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get(fiber.HeaderContentType))

	doc, err := filesystem.ParseDocument([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, env.store.Get(), doc)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/healthz")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","server_id":"test-server","clients":0}`, body)

	env.save(t, `{"nodes": [], "connections": []}`)

	resp, body = env.get(t, "/metrics")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `mindmap_saves_total{result="ok",source="http"} 1`)
	assert.Contains(t, body, `mindmap_document_nodes 0`)
	assert.Contains(t, body, `mindmap_http_requests_total`)
}

func TestTokenGuardsSave(t *testing.T) {
	env := newTestEnv(t, withToken("s3cret"))

	resp, _ := env.save(t, `{"nodes": [], "connections": []}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.DefaultDocument(), env.store.Get())

	req := httptest.NewRequest(fiber.MethodPost, "/save", strings.NewReader(`{"nodes": [], "connections": []}`))
	req.Header.Set(auth.HeaderName, "s3cret")
	resp, _ = env.do(t, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/get_mind_map")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUnknownRouteAndPlainWebSocketRequest(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/nope")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"error"`)

	resp, _ = env.get(t, "/ws")
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestSaveBroadcastsToWebSocketClients(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(ln) }()
	t.Cleanup(func() { _ = env.app.ShutdownWithTimeout(time.Second) })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	body := `{"nodes": [{"id":"a","title":"A","subtitle":"","x":0,"y":0}], "connections": []}`
	resp, _ := env.save(t, body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, ws.TypeReplaced, msg.Type)
	assert.Equal(t, "test-server", msg.Origin)
	require.NotNil(t, msg.Document)
	assert.Equal(t, env.store.Get(), *msg.Document)
}
