package intake

import (
	"archive/zip"
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"analyzerd/internal/registry"
)

func testServer(t *testing.T) (*Server, chan registry.Packet) {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.New(root, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	signal := make(chan registry.Packet, 16)
	return New(reg, log.New(io.Discard, "", 0), signal), signal
}

func buildZIP(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestHandleRootWelcome(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "Welcome\n" {
		t.Fatalf("got %d %q, want 200 %q", rec.Code, rec.Body.String(), "Welcome\n")
	}
}

func TestHandleSubmitValidArchive(t *testing.T) {
	s, signal := testServer(t)
	data := buildZIP(t, map[string]string{
		"main.c":         "int main(void){return 0;}",
		"input/0":        "AAAA",
		"crash/.gitkeep": "",
	})

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "is scheduled for analysis") {
		t.Fatalf("body = %q, want it to mention scheduling", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "/status/") {
		t.Fatalf("body = %q, want a /status/ URL", rec.Body.String())
	}

	select {
	case <-signal:
	default:
		t.Fatalf("expected a packet to be sent on the work channel for a new submission")
	}
}

func TestHandleSubmitRejectsZipSlip(t *testing.T) {
	s, _ := testServer(t)
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("../../etc/passwd")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := f.Write([]byte("pwned")); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(buf.Bytes()))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Body.String(), "[error] ") {
		t.Fatalf("body = %q, want [error] prefix", rec.Body.String())
	}
}

func TestHandleSubmitRejectsMalformedSubmission(t *testing.T) {
	s, _ := testServer(t)
	data := buildZIP(t, map[string]string{"main.c": "int main(void){return 0;}"})

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "input/ is missing") {
		t.Fatalf("body = %q, want it to mention the missing input/ directory", rec.Body.String())
	}
}

func TestHandleSubmitDedupsRepeatedArchive(t *testing.T) {
	s, _ := testServer(t)
	data := buildZIP(t, map[string]string{
		"main.c":  "int main(void){return 0;}",
		"input/0": "a",
		"crash/0": "b",
	})

	wantPhrases := []string{"is scheduled for analysis", "has been submitted before"}
	for i, want := range wantPhrases {
		req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(data))
		rec := httptest.NewRecorder()
		s.Mux().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, body=%s", i, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("attempt %d: body = %q, want it to contain %q", i, rec.Body.String(), want)
		}
	}
}

func TestHandleStatusUnknownHash(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status/"+strings.Repeat("0", 64), nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "no such package\n" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "no such package\n")
	}
}

func TestHandleStatusReturnsQueuePositionForFreshSubmission(t *testing.T) {
	s, _ := testServer(t)
	data := buildZIP(t, map[string]string{
		"main.c":  "int main(void){return 0;}",
		"input/0": "a",
		"crash/0": "b",
	})

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	body := rec.Body.String()
	start := strings.Index(body, "/status/")
	if start == -1 {
		t.Fatalf("submit response missing /status/ URL: %q", body)
	}
	hash := strings.TrimSpace(body[start+len("/status/"):])

	statusReq := httptest.NewRequest(http.MethodGet, "/status/"+hash, nil)
	statusRec := httptest.NewRecorder()
	s.Mux().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", statusRec.Code, statusRec.Body.String())
	}
	if statusRec.Body.String() != "queued at position 0\n" {
		t.Fatalf("body = %q, want %q", statusRec.Body.String(), "queued at position 0\n")
	}
}

func TestHandleRootSanityForUnknownPath(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bogus", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if !strings.HasPrefix(rec.Body.String(), "[error] invalid URL") {
		t.Fatalf("body = %q, want invalid URL sanity message", rec.Body.String())
	}
}

func TestSecureArchiveTargetPathRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if _, err := secureArchiveTargetPath(dir, "../escape"); err == nil {
		t.Fatalf("expected escape path to be rejected")
	}
	if _, err := secureArchiveTargetPath(dir, "/absolute"); err == nil {
		t.Fatalf("expected absolute path to be rejected")
	}
	target, err := secureArchiveTargetPath(dir, "input/0")
	if err != nil {
		t.Fatalf("secureArchiveTargetPath: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir vanished: %v", err)
	}
	_ = target
}
