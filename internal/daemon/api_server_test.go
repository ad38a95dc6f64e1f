package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"stave/internal/api"
	"stave/internal/testsupport"
)

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func startAPI(t *testing.T, opts ...testsupport.ConfigOption) (*harness, *apiClient) {
	t.Helper()
	h := newHarness(t, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h, &apiClient{t: t, base: "http://" + h.daemon.APIAddress(), token: h.cfg.Paths.APIToken}
}

func (c *apiClient) do(method, path string, body any, out any) *http.Response {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func mountPath(name string) string {
	return "/api/mounts/" + url.PathEscape(name)
}

func TestAPIRenderLifecycle(t *testing.T) {
	h, c := startAPI(t)
	testsupport.WriteScore(t, h.cfg, "scores/a.mei", "<mei>a</mei>")

	var rendered api.RenderResponse
	resp := c.do(http.MethodPost, "/api/render", api.RenderRequest{Mount: "etudes.md#0", Source: "scores/a.mei"}, &rendered)
	if resp.StatusCode != http.StatusOK || rendered.SessionID == "" {
		t.Fatalf("render: %d %+v", resp.StatusCode, rendered)
	}
	id := rendered.SessionID

	var list api.SessionListResponse
	c.do(http.MethodGet, "/api/sessions", nil, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != id || !list.Sessions[0].Mounted {
		t.Fatalf("unexpected sessions: %+v", list)
	}

	var mount api.MountPoint
	resp = c.do(http.MethodGet, mountPath("etudes.md#0"), nil, &mount)
	if resp.StatusCode != http.StatusOK || mount.SessionID != id || !strings.Contains(mount.SVG, "<svg") {
		t.Fatalf("mount: %d %+v", resp.StatusCode, mount)
	}

	resp = c.do(http.MethodGet, mountPath("etudes.md#0")+"?format=html", nil, nil)
	page, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(page), `data-unique-id="`+id+`"`) {
		t.Fatalf("unexpected html mount: %s", page)
	}

	var action api.ActionResponse
	resp = c.do(http.MethodPost, "/api/sessions/"+id+"/page/2", nil, &action)
	if resp.StatusCode != http.StatusOK || !action.OK {
		t.Fatalf("page: %d %+v", resp.StatusCode, action)
	}
	var sess api.Session
	c.do(http.MethodGet, "/api/sessions/"+id, nil, &sess)
	if sess.Page != 2 {
		t.Fatalf("page = %d, want 2", sess.Page)
	}

	var failure api.ErrorResponse
	resp = c.do(http.MethodPost, "/api/sessions/"+id+"/page/9", nil, &failure)
	if resp.StatusCode != http.StatusBadRequest || failure.Kind != "validation" {
		t.Fatalf("out of range page: %d %+v", resp.StatusCode, failure)
	}

	resp = c.do(http.MethodGet, "/api/sessions/"+id+"/download", nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Disposition"), "score.svg") {
		t.Fatalf("download: %d %q", resp.StatusCode, resp.Header.Get("Content-Disposition"))
	}

	resp = c.do(http.MethodPost, "/api/sessions/"+id+"/play", nil, &action)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("play: %d", resp.StatusCode)
	}
	var status api.PlaybackStatus
	c.do(http.MethodGet, "/api/playback", nil, &status)
	if status.State != "playing" || status.SessionID != id {
		t.Fatalf("playback: %+v", status)
	}

	resp = c.do(http.MethodDelete, mountPath("etudes.md#0"), nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unmount: %d", resp.StatusCode)
	}
	c.do(http.MethodGet, "/api/sessions", nil, &list)
	if len(list.Sessions) != 0 {
		t.Fatalf("sessions left after unmount: %+v", list.Sessions)
	}
	c.do(http.MethodGet, "/api/playback", nil, &status)
	if status.State != "idle" {
		t.Fatalf("playback after unmount: %+v", status)
	}
}

func TestAPIRenderFailureReportsMountedMessage(t *testing.T) {
	_, c := startAPI(t)

	var rendered api.RenderResponse
	resp := c.do(http.MethodPost, "/api/render", api.RenderRequest{Mount: "n#0", Source: "missing.mei"}, &rendered)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if !strings.HasPrefix(rendered.Error, "Error rendering data:") || rendered.SessionID != "" {
		t.Fatalf("unexpected response: %+v", rendered)
	}

	var mount api.MountPoint
	c.do(http.MethodGet, mountPath("n#0"), nil, &mount)
	if mount.Error != rendered.Error {
		t.Fatalf("mounted error %q, want %q", mount.Error, rendered.Error)
	}
}

func TestAPIDocument(t *testing.T) {
	h, c := startAPI(t)
	testsupport.WriteScore(t, h.cfg, "a.mei", "<mei/>")

	var doc api.DocumentResponse
	resp := c.do(http.MethodPost, "/api/documents", api.DocumentRequest{Note: "n.md", Text: "```verovio\na.mei\n```\n"}, &doc)
	if resp.StatusCode != http.StatusOK || len(doc.Blocks) != 1 || doc.Blocks[0].SessionID == "" || doc.Blocks[0].Line != 1 {
		t.Fatalf("document: %d %+v", resp.StatusCode, doc)
	}

	var failure api.ErrorResponse
	resp = c.do(http.MethodPost, "/api/documents", api.DocumentRequest{Text: "x"}, &failure)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing note name: %d %+v", resp.StatusCode, failure)
	}
}

func TestAPIUnknownSession(t *testing.T) {
	_, c := startAPI(t)
	var failure api.ErrorResponse
	resp := c.do(http.MethodGet, "/api/sessions/nope", nil, &failure)
	if resp.StatusCode != http.StatusNotFound || failure.Kind != "not_found" {
		t.Fatalf("unexpected: %d %+v", resp.StatusCode, failure)
	}

	resp = c.do(http.MethodPost, "/api/sessions/nope/dance", nil, &failure)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown action: %d", resp.StatusCode)
	}
}

func TestAPIStatusRequiresToken(t *testing.T) {
	_, c := startAPI(t, testsupport.WithAPIToken("secret"))

	var status api.DaemonStatus
	resp := c.do(http.MethodGet, "/api/status", nil, &status)
	if resp.StatusCode != http.StatusOK || !status.Running {
		t.Fatalf("status: %d %+v", resp.StatusCode, status)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}

	anonymous := &apiClient{t: t, base: c.base}
	resp = anonymous.do(http.MethodGet, "/api/status", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestAPINotices(t *testing.T) {
	h, c := startAPI(t)
	if _, _, err := h.daemon.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	var notices api.NoticeListResponse
	c.do(http.MethodGet, "/api/notices?limit=5", nil, &notices)
	if len(notices.Notices) != 1 || notices.Notices[0].Kind != "test" {
		t.Fatalf("unexpected notices: %+v", notices)
	}
}
