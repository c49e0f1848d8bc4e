package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	go_json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/websocket"

	"github.com/Zachkp/skycode/internal/analytics"
	"github.com/Zachkp/skycode/internal/config"
	"github.com/Zachkp/skycode/internal/content"
	"github.com/Zachkp/skycode/internal/live"
	"github.com/Zachkp/skycode/internal/page"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var pageIDPattern = regexp.MustCompile(`data-page-id="([^"]+)"`)

func testConfig() config.Config {
	return config.Config{
		Port:          "0",
		Mode:          config.ModeTest,
		TemplatesGlob: "templates/*",
		StaticDir:     "./static",
		ImagesDir:     "./images",
		SessionTTL:    time.Minute,
		SweepInterval: time.Minute,
		ShutdownGrace: time.Second,
		Analytics: config.Analytics{
			Enabled:   true,
			Retention: 24 * time.Hour,
		},
		Admin: config.Admin{Username: "pilot", Password: "hunter2"},
	}
}

type testEnv struct {
	srv     *server
	handler http.Handler
	stats   *analytics.Store
}

func newTestEnv(t *testing.T, portfolio *content.Portfolio) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(), portfolio)
}

func newTestEnvWithConfig(t *testing.T, cfg config.Config, portfolio *content.Portfolio) *testEnv {
	t.Helper()

	if portfolio == nil {
		var err error
		portfolio, err = content.Default()
		if err != nil {
			t.Fatalf("content.Default: %v", err)
		}
	}
	stats, err := analytics.OpenMemory(analytics.WithSalt("test"))
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { stats.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := newServer(cfg, logger, portfolio, stats)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(srv.closeSessions)
	return &testEnv{srv: srv, handler: srv.router(), stats: stats}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// mountPage loads the index page and returns the page ID embedded in it.
func (e *testEnv) mountPage(t *testing.T) string {
	t.Helper()

	w := e.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, body = %s", w.Code, w.Body.String())
	}
	m := pageIDPattern.FindStringSubmatch(w.Body.String())
	if m == nil {
		t.Fatal("index page has no page id")
	}
	return m[1]
}

func (e *testEnv) state(t *testing.T, id string) page.State {
	t.Helper()

	w := e.do(t, http.MethodGet, "/pages/"+id+"/state", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET state status = %d", w.Code)
	}
	var st page.State
	if err := go_json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	return st
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestIndexMountsPage(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`id="home"`, `id="about"`, `id="skills"`, `id="projects"`, `id="contact"`,
		`id="site-nav"`, "Alex Skycode", "<strong>disciplined</strong>", "FlightPath",
		`data-sections="home about skills projects contact"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
	if got := strings.Count(body, `class="particle"`); got != page.DefaultFieldSize {
		t.Errorf("rendered %d particles, want %d", got, page.DefaultFieldSize)
	}

	id := pageIDPattern.FindStringSubmatch(body)[1]
	st := e.state(t, id)
	want := page.State{ActiveSection: page.SectionHome}
	if diff := cmp.Diff(want, st, cmpopts.IgnoreFields(page.State{}, "Field")); diff != "" {
		t.Errorf("mount state (-want +got):\n%s", diff)
	}
	if len(st.Field) != page.DefaultFieldSize {
		t.Errorf("field has %d tokens", len(st.Field))
	}
}

func TestSectionIDs(t *testing.T) {
	tests := []struct {
		in   []page.Section
		want string
	}{
		{in: nil, want: ""},
		{in: []page.Section{page.SectionHome}, want: "home"},
		{in: []page.Section{page.SectionHome, page.SectionAbout, page.SectionContact}, want: "home about contact"},
	}
	for _, tt := range tests {
		if got := sectionIDs(tt.in); got != tt.want {
			t.Errorf("sectionIDs(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEveryLoadGetsItsOwnPage(t *testing.T) {
	e := newTestEnv(t, nil)

	a := e.mountPage(t)
	b := e.mountPage(t)
	if a == b {
		t.Fatal("two loads shared a page id")
	}
	if n := e.srv.sessions.Len(); n != 2 {
		t.Errorf("sessions = %d, want 2", n)
	}
}

func TestNavigateRequestsScroll(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.mountPage(t)

	e.do(t, http.MethodPost, "/pages/"+id+"/menu/toggle", nil, nil)

	w := e.do(t, http.MethodPost, "/pages/"+id+"/nav/projects", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var trigger map[string]struct {
		Section page.Section `json:"section"`
		Smooth  bool         `json:"smooth"`
	}
	if err := go_json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &trigger); err != nil {
		t.Fatalf("decoding HX-Trigger %q: %v", w.Header().Get("HX-Trigger"), err)
	}
	ev, ok := trigger["scrollIntoView"]
	if !ok || ev.Section != page.SectionProjects || !ev.Smooth {
		t.Errorf("HX-Trigger = %+v", trigger)
	}
	if strings.Contains(w.Body.String(), `id="mobile-menu"`) {
		t.Error("navigation left the mobile menu open")
	}

	st := e.state(t, id)
	if st.ActiveSection != page.SectionProjects || st.MenuOpen {
		t.Errorf("state = %+v", st)
	}
}

func TestNavigateToMissingSection(t *testing.T) {
	portfolio, err := content.Default()
	if err != nil {
		t.Fatal(err)
	}
	portfolio.Projects = nil

	e := newTestEnv(t, portfolio)
	id := e.mountPage(t)

	w := e.do(t, http.MethodPost, "/pages/"+id+"/nav/projects", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("HX-Trigger"); got != "" {
		t.Errorf("HX-Trigger = %q, want none", got)
	}
	if got := e.state(t, id).ActiveSection; got != page.SectionProjects {
		t.Errorf("active = %s, want projects", got)
	}
}

func TestNavigateErrors(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.mountPage(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "unknown section", target: "/pages/" + id + "/nav/blog", want: http.StatusBadRequest},
		{name: "unknown page", target: "/pages/nope/nav/about", want: http.StatusNotFound},
		{name: "unknown page toggle", target: "/pages/nope/menu/toggle", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodPost, tt.target, nil, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
	if got := e.state(t, id).ActiveSection; got != page.SectionHome {
		t.Errorf("rejected navigation changed active section to %s", got)
	}
}

func TestToggleMenu(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.mountPage(t)

	w := e.do(t, http.MethodPost, "/pages/"+id+"/menu/toggle", nil, nil)
	if !strings.Contains(w.Body.String(), `id="mobile-menu"`) {
		t.Error("open menu not rendered")
	}
	if !e.state(t, id).MenuOpen {
		t.Error("menu not open after first toggle")
	}

	w = e.do(t, http.MethodPost, "/pages/"+id+"/menu/toggle", nil, nil)
	if strings.Contains(w.Body.String(), `id="mobile-menu"`) {
		t.Error("closed menu still rendered")
	}
	if e.state(t, id).MenuOpen {
		t.Error("menu open after second toggle")
	}
}

func TestScroll(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.mountPage(t)
	form := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}

	tests := []struct {
		name   string
		body   string
		status int
		want   float64
	}{
		{name: "offset", body: "offset=240", status: http.StatusNoContent, want: 240},
		{name: "negative clamps", body: "offset=-5", status: http.StatusNoContent, want: 0},
		{name: "missing", body: "", status: http.StatusBadRequest, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/pages/"+id+"/scroll", strings.NewReader(tt.body), form)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := e.state(t, id).ScrollOffset; got != tt.want {
				t.Errorf("offset = %v, want %v", got, tt.want)
			}
		})
	}

	if got := e.state(t, id).ActiveSection; got != page.SectionHome {
		t.Errorf("scrolling changed active section to %s", got)
	}
}

func TestVisitorTracking(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	e.mountPage(t)
	e.do(t, http.MethodGet, "/", nil, http.Header{"Dnt": {"1"}})
	e.do(t, http.MethodGet, "/privacy", nil, nil)
	e.do(t, http.MethodGet, "/healthz", nil, nil)

	stats, err := e.stats.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalVisitors != 1 {
		t.Errorf("visitors = %d, want 1", stats.TotalVisitors)
	}
}

func TestNavigationIsRecorded(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.mountPage(t)

	e.do(t, http.MethodPost, "/pages/"+id+"/nav/about", nil, nil)
	e.do(t, http.MethodPost, "/pages/"+id+"/nav/about", nil, nil)
	e.do(t, http.MethodPost, "/pages/"+id+"/nav/contact", nil, nil)

	got, err := e.stats.TopSections(context.Background())
	if err != nil {
		t.Fatalf("TopSections: %v", err)
	}
	want := []analytics.SectionCount{{Section: "about", Count: 2}, {Section: "contact", Count: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("top sections (-want +got):\n%s", diff)
	}
}

func TestAdminLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	form := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}

	if w := e.do(t, http.MethodGet, "/admin/dashboard", nil, nil); w.Code != http.StatusFound {
		t.Errorf("unauthenticated dashboard status = %d, want 302", w.Code)
	}

	bad := url.Values{"username": {"pilot"}, "password": {"wrong"}}.Encode()
	if w := e.do(t, http.MethodPost, "/admin/login", strings.NewReader(bad), form); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", w.Code)
	}

	good := url.Values{"username": {"pilot"}, "password": {"hunter2"}}.Encode()
	w := e.do(t, http.MethodPost, "/admin/login", strings.NewReader(good), form)
	if w.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login set no cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats analytics.Stats
	if err := go_json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("dashboard status = %d", rec.Code)
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if a := newAdminAuth(config.Admin{Username: "admin"}, config.ModeRelease, logger); a != nil {
		t.Error("admin enabled in release mode without a password")
	}
	a := newAdminAuth(config.Admin{Username: "admin"}, config.ModeDebug, logger)
	if a == nil || !a.check("admin", devAdminPassword) {
		t.Error("debug mode did not fall back to the development password")
	}
}

func readLive(t *testing.T, conn *websocket.Conn) live.Outbound {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg live.Outbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestLiveConnection(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.handler)
	t.Cleanup(ts.Close)

	id := e.mountPage(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/pages/" + id + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	initial := readLive(t, conn)
	if initial.Type != live.TypeState || initial.State.ActiveSection != page.SectionHome {
		t.Fatalf("initial message = %+v", initial)
	}

	if err := conn.WriteJSON(map[string]any{"type": "mount", "elements": []string{"home", "about", "skills", "projects", "contact"}}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "scroll", "offset": 120}); err != nil {
		t.Fatal(err)
	}
	if msg := readLive(t, conn); msg.State == nil || msg.State.ScrollOffset != 120 {
		t.Errorf("scroll state = %+v", msg)
	}

	// With a live connection the scroll request goes over the socket
	// instead of the HTMX response.
	w := e.do(t, http.MethodPost, "/pages/"+id+"/nav/skills", nil, nil)
	if got := w.Header().Get("HX-Trigger"); got != "" {
		t.Errorf("HX-Trigger = %q while live", got)
	}
	want := []live.Outbound{
		{Type: live.TypeScrollIntoView, Section: page.SectionSkills, Smooth: true},
		{Type: live.TypeState, State: &live.StateView{ActiveSection: page.SectionSkills, ScrollOffset: 120}},
	}
	got := []live.Outbound{readLive(t, conn), readLive(t, conn)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("navigate while live (-want +got):\n%s", diff)
	}

	second, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		second.Close()
		t.Error("second live connection to the same page was accepted")
	} else if resp != nil && resp.StatusCode != http.StatusConflict {
		t.Errorf("second connection status = %d, want 409", resp.StatusCode)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitDetached(t, e, id)

	// The page survives the disconnect and goes back to HTMX rendering.
	w = e.do(t, http.MethodPost, "/pages/"+id+"/nav/projects", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("nav after disconnect status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"projects"`) {
		t.Errorf("HX-Trigger after disconnect = %q", w.Header().Get("HX-Trigger"))
	}

	again, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer again.Close()
	msg := readLive(t, again)
	if msg.Type != live.TypeState || msg.State.ActiveSection != page.SectionProjects || msg.State.ScrollOffset != 120 {
		t.Errorf("state after reconnect = %+v", msg)
	}
	if err := again.WriteJSON(map[string]any{"type": "scroll", "offset": 300}); err != nil {
		t.Fatal(err)
	}
	if msg := readLive(t, again); msg.State == nil || msg.State.ScrollOffset != 300 {
		t.Errorf("scroll after reconnect = %+v", msg)
	}
}

// waitDetached blocks until the page's live connection has been released.
func waitDetached(t *testing.T, e *testEnv, id string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ps, ok, err := e.srv.sessions.Get(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("page session lost after disconnect: ok=%v err=%v", ok, err)
		}
		if !ps.connected.Load() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("live connection was not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExpiredPageRedirectsHTMXClients(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTTL = time.Millisecond
	e := newTestEnvWithConfig(t, cfg, nil)

	id := e.mountPage(t)
	time.Sleep(20 * time.Millisecond)

	htmx := http.Header{"Hx-Request": {"true"}}
	tests := []struct {
		name   string
		target string
		header http.Header
		want   string
	}{
		{name: "nav", target: "/pages/" + id + "/nav/projects", header: htmx, want: "/#projects"},
		{name: "menu", target: "/pages/" + id + "/menu/toggle", header: htmx, want: "/"},
		{name: "plain request", target: "/pages/" + id + "/nav/projects", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.target, nil, tt.header)
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
			if got := w.Header().Get("HX-Redirect"); got != tt.want {
				t.Errorf("HX-Redirect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"field", "--count", "3"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("field: %v", err)
	}

	var field []page.DecorativeToken
	if err := go_json.Unmarshal(out.Bytes(), &field); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(field) != 3 {
		t.Errorf("got %d tokens, want 3", len(field))
	}

	cmd = newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"field", "--count", "-1"})
	if err := cmd.Execute(); err == nil {
		t.Error("negative count accepted")
	}
}

func TestContentValidateCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"content", "validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("content validate: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ok: Alex Skycode, 5 sections, 10 skills, 4 projects") {
		t.Errorf("output = %q", out.String())
	}
}
