package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"analyzerd/internal/registry"
)

// maxUploadSize bounds the ZIP body accepted by /submit: a submission's
// own content limits (256KiB program, 1KiB per case) mean a legitimate
// archive is always small; this is a coarse backstop against abuse.
const maxUploadSize = 16 * 1024 * 1024

// Server is the HTTP frontend that turns ZIP uploads into registered
// packets and reports their analysis status, per §4.4/§6.
type Server struct {
	reg    *registry.Registry
	logger *log.Logger
	signal chan<- registry.Packet
}

// New builds a Server. signal carries every freshly registered packet to
// a worker goroutine; it may be nil in tests that only exercise
// request/response behavior without a worker pool attached.
func New(reg *registry.Registry, logger *log.Logger, signal chan<- registry.Packet) *Server {
	return &Server{reg: reg, logger: logger, signal: signal}
}

// Mux builds the route table: GET /, GET /status/<hex>, POST /submit,
// with Sanity as the catch-all for anything else, per the §4.4 table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/submit", s.handleSubmit)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "" {
		s.sanity(w, "invalid URL")
		return
	}
	if r.Method != http.MethodGet {
		s.sanity(w, "invalid method")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Welcome\n")
}

// sanity answers a request that matched no recognized (method, path)
// pair with a 200 body prefixed "[error] ", per §4.4's Sanity action and
// §7's client-error body convention.
func (s *Server) sanity(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "[error] %s\n", reason)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sanity(w, "invalid method")
		return
	}
	hash := strings.TrimPrefix(r.URL.Path, "/status/")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	status, data, ok, err := s.reg.LoadStatus(hash)
	if err != nil {
		s.logger.Printf("load status %s: %v", hash, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "[internal error] %s\n", err)
		return
	}
	if !ok {
		io.WriteString(w, "no such package\n")
		return
	}

	switch status {
	case registry.Completed:
		var compact strings.Builder
		if err := json.Compact(&compact, data); err != nil {
			s.logger.Printf("compact result for %s: %v", hash, err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "[internal error] corrupt result for %s\n", hash)
			return
		}
		io.WriteString(w, compact.String())
		io.WriteString(w, "\n")
	default: // Received or Error: data is already the message to show.
		w.Write(data)
		io.WriteString(w, "\n")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.Method != http.MethodPost {
		s.sanity(w, "invalid method")
		return
	}

	extractDir, err := os.MkdirTemp("", "submit-*")
	if err != nil {
		s.logger.Printf("create scratch dir: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "[internal error] %s\n", err)
		return
	}

	code, body := s.submit(w, r, extractDir)

	// The scratch directory is always released, regardless of how submit
	// resolved, per §4.4's "always delete the scratch directory"; a
	// cleanup failure overrides an otherwise-successful response.
	if rmErr := os.RemoveAll(extractDir); rmErr != nil {
		s.logger.Printf("remove scratch dir %s: %v", extractDir, rmErr)
		code = http.StatusInternalServerError
		body = fmt.Sprintf("[internal error] failed to clean up scratch directory: %s", rmErr)
	}

	w.WriteHeader(code)
	io.WriteString(w, body)
	io.WriteString(w, "\n")
}

// submit implements the body of the POST /submit action: parse the ZIP
// into extractDir, register it, and enqueue it if new. It never deletes
// extractDir itself; the caller always does that exactly once.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, extractDir string) (int, string) {
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	tmpZip, err := os.CreateTemp("", "submit-*.zip")
	if err != nil {
		s.logger.Printf("create temp zip: %v", err)
		return http.StatusInternalServerError, fmt.Sprintf("[internal error] %s", err)
	}
	defer os.Remove(tmpZip.Name())
	defer tmpZip.Close()

	if _, err := io.Copy(tmpZip, body); err != nil {
		return http.StatusBadRequest, fmt.Sprintf("[error] failed to read upload: %s", err)
	}
	if err := tmpZip.Close(); err != nil {
		s.logger.Printf("close temp zip: %v", err)
		return http.StatusInternalServerError, fmt.Sprintf("[internal error] %s", err)
	}

	if err := extractZIP(tmpZip.Name(), extractDir); err != nil {
		return http.StatusBadRequest, fmt.Sprintf("[error] malformed zip: %s", err)
	}

	packet, created, err := s.reg.Register(extractDir)
	existed := !created
	if err != nil {
		var merr *registry.MalformedError
		if errors.As(err, &merr) {
			return http.StatusBadRequest, fmt.Sprintf("[error] %s", merr.Error())
		}
		s.logger.Printf("register submission: %v", err)
		return http.StatusInternalServerError, fmt.Sprintf("[internal error] %s", err)
	}

	if !existed {
		if s.signal != nil {
			select {
			case s.signal <- packet:
			default:
				s.logger.Printf("work queue full, dropping wakeup for %s", packet.H)
				return http.StatusInternalServerError, "[internal error] work queue is full"
			}
		}
	}

	verb := "is scheduled for analysis"
	if existed {
		verb = "has been submitted before"
	}
	url := fmt.Sprintf("http://%s/status/%s", r.Host, packet.H)
	return http.StatusOK, fmt.Sprintf("the package %s, you can check its status or result at %s", verb, url)
}
