package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/dispatch"
	"github.com/wippyai/capture-bridge/drivertest"
	"github.com/wippyai/capture-bridge/enroll"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13 + 1)
	}
	return b
}

type fixture struct {
	srv    *Server
	loader *drivertest.Loader
	driver *drivertest.Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	driver := &drivertest.Driver{Template: pattern(512)}
	loader := drivertest.NewLoader()
	loader.Register("mfs100.so", driver)
	loader.Register("partial.so", &drivertest.Driver{Missing: []string{"CaptureFinger"}})

	store, err := enroll.Open(context.Background(), filepath.Join(t.TempDir(), "enroll.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	worker := dispatch.New()
	b := bridge.New(binding.NewTable(loader, binding.DefaultSymbols()))

	srv := New(b, worker, WithStore(store), WithDriverPath("mfs100.so"))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		worker.Close()
		_ = store.Close()
	})
	return &fixture{srv: srv, loader: loader, driver: driver}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "GET", "/api/status", nil)
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	st := decode[StatusResponse](t, body)
	if st.State != "unloaded" || st.BufferCapacity != bridge.DefaultBufferCapacity {
		t.Fatalf("unexpected status %+v", st)
	}

	f.do(t, "POST", "/api/module", nil)
	_, body = f.do(t, "GET", "/api/status", nil)
	st = decode[StatusResponse](t, body)
	if st.State != "loaded" || st.Path != "mfs100.so" {
		t.Fatalf("unexpected status after load %+v", st)
	}
}

func TestCaptureNotBound(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/device/capture", nil)
	if code != 409 {
		t.Fatalf("Status = %d, want 409", code)
	}
	if string(body) != `{"errorCode":-999,"success":false}` {
		t.Fatalf("unexpected body %s", body)
	}

	code, body = f.do(t, "POST", "/api/device/init", nil)
	if code != 409 {
		t.Fatalf("init Status = %d, want 409", code)
	}
	if got := decode[map[string]any](t, body); got["errorCode"] != float64(-999) || got["kind"] != "not_bound" {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)

	if code, body := f.do(t, "POST", "/api/module", LoadRequest{Path: "mfs100.so"}); code != 200 {
		t.Fatalf("load: %d %s", code, body)
	}
	if code, body := f.do(t, "POST", "/api/device/init", nil); code != 200 || !strings.Contains(string(body), `"code":0`) {
		t.Fatalf("init: %d %s", code, body)
	}

	quality := 80
	code, body := f.do(t, "POST", "/api/device/capture", CaptureRequest{Quality: &quality})
	if code != 200 {
		t.Fatalf("capture: %d %s", code, body)
	}
	res := decode[bridge.CaptureResult](t, body)
	if !res.Success || res.TemplateSize != 512 || res.Quality != 80 || len(res.Template) != 684 {
		t.Fatalf("unexpected capture %+v", res)
	}
	raw, _ := res.Decode()
	if !bytes.Equal(raw, pattern(512)) {
		t.Fatal("template mismatch")
	}

	code, body = f.do(t, "POST", "/api/device/capture", nil)
	if code != 200 || decode[bridge.CaptureResult](t, body).Quality != bridge.DefaultQuality {
		t.Fatalf("default quality capture: %d %s", code, body)
	}

	if code, _ := f.do(t, "POST", "/api/device/uninit", nil); code != 200 {
		t.Fatalf("uninit: %d", code)
	}
	if code, body := f.do(t, "DELETE", "/api/module", nil); code != 200 || !strings.Contains(string(body), `"loaded":false`) {
		t.Fatalf("unload: %d %s", code, body)
	}
	if f.loader.Live() != 0 {
		t.Fatal("module should be released")
	}
}

func TestLoadErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		kind string
		want int
	}{
		{"absent.so", "module_load_failure", 422},
		{"partial.so", "missing_export", 422},
	}
	for _, tt := range tests {
		code, body := f.do(t, "POST", "/api/module", LoadRequest{Path: tt.path})
		if code != tt.want {
			t.Fatalf("%s: status %d, want %d", tt.path, code, tt.want)
		}
		if got := decode[map[string]any](t, body); got["kind"] != tt.kind {
			t.Fatalf("%s: unexpected body %s", tt.path, body)
		}
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/device/capture", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.srv.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestCaptureDriverFailureIsResult(t *testing.T) {
	f := newFixture(t)
	f.driver.Status = map[string]int32{"CaptureFinger": -1140}
	f.do(t, "POST", "/api/module", nil)

	code, body := f.do(t, "POST", "/api/device/capture", nil)
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	if string(body) != `{"errorCode":-1140,"success":false}` {
		t.Fatalf("unexpected body %s", body)
	}

	f.driver.Status = map[string]int32{"Init": -3}
	code, body = f.do(t, "POST", "/api/device/init", nil)
	if code != 502 {
		t.Fatalf("init Status = %d, want 502", code)
	}
	if got := decode[map[string]any](t, body); got["errorCode"] != float64(-3) || got["kind"] != "driver_error" {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestEnrollAndMatch(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/module", nil)

	if code, _ := f.do(t, "POST", "/api/enrollments", EnrollRequest{}); code != 400 {
		t.Fatalf("enroll without subject: %d, want 400", code)
	}

	code, body := f.do(t, "POST", "/api/enrollments", EnrollRequest{Subject: "alice"})
	if code != 201 {
		t.Fatalf("enroll: %d %s", code, body)
	}
	rec := decode[enroll.Record](t, body)
	if rec.ID == "" || rec.Subject != "alice" || !bytes.Equal(rec.Template, pattern(512)) {
		t.Fatalf("unexpected record %+v", rec)
	}

	_, body = f.do(t, "GET", "/api/enrollments", nil)
	if records := decode[[]enroll.Record](t, body); len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	code, body = f.do(t, "POST", "/api/match", nil)
	m := decode[enroll.Match](t, body)
	if code != 200 || !m.Matched || m.Subject != "alice" || m.Score != 100 {
		t.Fatalf("captured match: %d %+v", code, m)
	}

	other := bytes.Repeat([]byte{0xFF}, 512)
	_, body = f.do(t, "POST", "/api/match", MatchRequest{Template: bridge.EncodeTemplate(other)})
	if m := decode[enroll.Match](t, body); m.Matched || m.Subject != "" {
		t.Fatalf("unrelated template should not match: %+v", m)
	}

	if code, _ := f.do(t, "POST", "/api/match", MatchRequest{Template: "not base64!"}); code != 400 {
		t.Fatalf("bad template: %d, want 400", code)
	}

	if code, _ := f.do(t, "DELETE", "/api/enrollments/"+rec.ID, nil); code != 204 {
		t.Fatalf("delete: %d, want 204", code)
	}
	if code, _ := f.do(t, "DELETE", "/api/enrollments/"+rec.ID, nil); code != 404 {
		t.Fatalf("second delete: %d, want 404", code)
	}
}

func TestEnrollNotBound(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, "POST", "/api/enrollments", EnrollRequest{Subject: "bob"})
	if code != 409 {
		t.Fatalf("Status = %d, want 409", code)
	}
	if got := decode[map[string]any](t, body); got["errorCode"] != float64(-999) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestWorkerClosed(t *testing.T) {
	f := newFixture(t)
	f.srv.worker.Close()

	if code, _ := f.do(t, "POST", "/api/module", nil); code != 503 {
		t.Fatalf("Status = %d, want 503", code)
	}
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	f := newFixture(t)

	if code, _ := f.do(t, "GET", "/ws/events", nil); code != 426 {
		t.Fatalf("Status = %d, want 426", code)
	}
}

// listen serves the fixture on a loopback port and returns the events URL.
func (f *fixture) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	go func() { _ = f.srv.App().Listener(ln) }()
	return "ws://" + ln.Addr().String() + "/ws/events"
}

func (f *fixture) waitClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.srv.events.clientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("event clients = %d, want %d", f.srv.events.clientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	url := f.listen(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	next := func() Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return decode[Event](t, data)
	}

	if ev := next(); ev.Type != "state" || ev.State != "unloaded" {
		t.Fatalf("first frame should be the state, got %+v", ev)
	}

	f.waitClients(t, 1)

	f.do(t, "POST", "/api/module", nil)
	if ev := next(); ev.Type != "loaded" || ev.Path != "mfs100.so" {
		t.Fatalf("expected loaded event, got %+v", ev)
	}

	f.do(t, "POST", "/api/device/init", nil)
	if ev := next(); ev.Type != "initialized" || ev.Code == nil || *ev.Code != 0 {
		t.Fatalf("expected initialized event, got %+v", ev)
	}

	f.driver.Status = map[string]int32{"CaptureFinger": 7}
	f.do(t, "POST", "/api/device/capture", nil)
	if ev := next(); ev.Type != "capture_failed" || ev.Code == nil || *ev.Code != 7 {
		t.Fatalf("expected capture_failed event, got %+v", ev)
	}
}

func TestEventsReconnect(t *testing.T) {
	f := newFixture(t)
	url := f.listen(t)

	for i := 0; i < 100; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read hello %d: %v", i, err)
		}
		_ = conn.Close()
	}
	f.waitClients(t, 0)

	// A recycled connection must not carry frames meant for an earlier client.
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return decode[Event](t, data)
	}
	if ev := read(); ev.Type != "state" {
		t.Fatalf("first frame should be the state, got %+v", ev)
	}
	f.waitClients(t, 1)

	f.do(t, "POST", "/api/module", nil)
	if ev := read(); ev.Type != "loaded" {
		t.Fatalf("expected loaded event, got %+v", ev)
	}
}

func TestEventsShutdownWithClient(t *testing.T) {
	f := newFixture(t)
	url := f.listen(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	f.waitClients(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// The server closes the stream; the client sees the connection end.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
