package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/easyclips/easyclips-agent/internal/events"
)

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"http://localhost", true},
		{"http://127.0.0.1:5173", true},
		{"https://acme.app.easyclips.co", true},
		{"https://acme.app.easyclips.co:443", true},
		{"https://a--b.app.easyclips.co", true},
		{"http://devorg.app.easyclips.local:3000", true},

		{"", false},
		{"https://evil.com", false},
		{"https://app.easyclips.co", false},
		{"https://easyclips.co", false},
		{"https://acme.app.easyclips.co.evil.com", false},
		{"https://-bad.app.easyclips.co", false},
		{"https://bad-.app.easyclips.co", false},
		{"http://192.168.1.20:3000", false},
		{"ftp://localhost:3000", false},
		{"http://localhost:abc", false},
		{"http://localhost:3000/editor", false},
		{"http://user@localhost:3000", false},
	}
	for _, tt := range tests {
		if got := isAllowedOrigin(tt.origin); got != tt.want {
			t.Errorf("isAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:51000", true},
		{"127.0.0.1", true},
		{"[::1]:51000", true},
		{"[::1]", true},
		{"::1", true},
		{"10.0.0.4:3000", false},
		{"8.8.8.8:443", false},
		{"localhost:80", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isLoopbackRemoteAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

// corsRequest runs one request through CORSAllowlist and reports whether the
// wrapped handler was reached.
func corsRequest(method, origin string, preset http.Header) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/project", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	for k, v := range preset {
		rr.Header()[k] = v
	}
	h.ServeHTTP(rr, req)
	return rr, reached
}

func TestCORSAllowlist(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantReached bool
		wantACAO    string
	}{
		{"no origin", http.MethodGet, "", http.StatusOK, true, ""},
		{"local editor", http.MethodGet, "http://localhost:3000", http.StatusOK, true, "http://localhost:3000"},
		{"hosted editor", http.MethodPost, "https://acme.app.easyclips.local", http.StatusOK, true, "https://acme.app.easyclips.local"},
		{"foreign origin still served", http.MethodGet, "https://evil.com", http.StatusOK, true, ""},
		{"allowed preflight", http.MethodOptions, "http://localhost:3000", http.StatusNoContent, false, "http://localhost:3000"},
		{"foreign preflight", http.MethodOptions, "https://evil.com", http.StatusForbidden, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, reached := corsRequest(tt.method, tt.origin, nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if reached != tt.wantReached {
				t.Errorf("handler reached = %v, want %v", reached, tt.wantReached)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantACAO)
			}
			if tt.origin != "" && rr.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", rr.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSAllowlist_PreflightHeaders(t *testing.T) {
	rr, _ := corsRequest(http.MethodOptions, "http://localhost:3000", nil)

	want := map[string][]string{
		"Access-Control-Allow-Headers":  {"Range", "Content-Type", "Authorization", HeaderRequestID, HeaderDeviceID},
		"Access-Control-Expose-Headers": {"Content-Range", "Accept-Ranges", "Content-Length", "X-Request-ID"},
		"Access-Control-Allow-Methods":  {"GET", "HEAD", "POST", "PATCH", "DELETE"},
	}
	for header, values := range want {
		got := rr.Header().Get(header)
		for _, v := range values {
			if !containsHeader(got, v) {
				t.Errorf("%s = %q, missing %s", header, got, v)
			}
		}
	}
	if rr.Header().Get("Access-Control-Max-Age") == "" {
		t.Error("preflight should be cacheable")
	}
}

func TestCORSAllowlist_KeepsExistingVary(t *testing.T) {
	rr, _ := corsRequest(http.MethodGet, "http://localhost:3000", http.Header{"Vary": {"Accept-Encoding"}})
	if got := strings.Join(rr.Header().Values("Vary"), ","); got != "Accept-Encoding,Origin" {
		t.Errorf("Vary = %q", got)
	}
}

func containsHeader(list, target string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == target {
			return true
		}
	}
	return false
}

func TestLoopbackGuard(t *testing.T) {
	for _, tt := range []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:40000", http.StatusOK},
		{"[::1]:40000", http.StatusOK},
		{"192.168.1.7:40000", http.StatusForbidden},
	} {
		t.Run(tt.remote, func(t *testing.T) {
			h := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/playback/file?media_id=m1", nil)
			req.RemoteAddr = tt.remote
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				if body := decodeJSONBody(t, rr); body["code"] != "FORBIDDEN" {
					t.Errorf("code = %v, want FORBIDDEN", body["code"])
				}
			}
		})
	}
}

type fakePlayback struct {
	served []string
}

func (f *fakePlayback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("media_id")
	if id == "" {
		http.Error(w, "media_id is required", http.StatusBadRequest)
		return
	}
	f.served = append(f.served, id)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", "4")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte("data"))
	}
}

func TestPlaybackRoute_Loopback_Integration(t *testing.T) {
	pb := &fakePlayback{}
	env := newTestEnv(t, func(c *ServerConfig) { c.PlaybackServer = pb })
	server := httptest.NewServer(env.router)
	defer server.Close()

	// no Authorization header: <video> cannot send one
	resp, err := http.Get(server.URL + "/playback/file?media_id=m1")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (loopback request via httptest should be allowed)", resp.StatusCode, http.StatusOK)
	}
	if len(pb.served) != 1 || pb.served[0] != "m1" {
		t.Errorf("served = %v", pb.served)
	}
}

func TestPlaybackRoute_RejectsRemote(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.PlaybackServer = &fakePlayback{} })
	req := httptest.NewRequest(http.MethodGet, "/playback/file?media_id=m1", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestPlaybackRoute_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/playback/file?media_id=m1", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestHealthRoute_CORS_Integration(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestPreflight_AuthenticatedRoute(t *testing.T) {
	env := newTestEnv(t)

	// preflights never carry credentials
	req := httptest.NewRequest(http.MethodOptions, "/clips/c1", nil)
	req.Header.Set("Origin", "https://acme.app.easyclips.co")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if !containsHeader(rr.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("Allow-Methods = %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestHEAD_PlaybackFile_NoBody(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.PlaybackServer = &fakePlayback{} })
	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/playback/file?media_id=m1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD response body length = %d, want 0", len(body))
	}
}

func TestHEAD_PlaybackFile_MissingMediaID(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.PlaybackServer = &fakePlayback{} })
	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/playback/file", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestRequestID_EchoesClientHeader(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	handler := RecoveryMiddleware(env.cfg.Logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestWebsocket_StreamsEvents(t *testing.T) {
	env := newTestEnv(t)
	env.importClips(t, 4)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + testToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap struct {
		Type string `json:"type"`
		Data struct {
			VideoClips []map[string]any `json:"video_clips"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != EventSnapshot || len(snap.Data.VideoClips) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	env.cfg.Bus.Publish(events.ExportProgress, map[string]int{"progress": 42})

	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != events.ExportProgress {
		t.Errorf("event type = %q", ev.Type)
	}
}

func TestWebsocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestWebsocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + testToken
	header := http.Header{"Origin": []string{"https://evil.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial from foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}
