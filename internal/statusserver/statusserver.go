// Package statusserver is an ambient, opt-in addition (SPEC_FULL §6): a
// small read-only HTTP surface for observing a run in progress, grounded
// on the teacher's chi.Router-based API server. It is started only when
// packager.status_addr is configured; the default "no flags required" CLI
// surface is unaffected when it's left empty.
package statusserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes /healthz and a read-only tail of the run's event log.
type Server struct {
	addr       string
	eventsPath string
	httpServer *http.Server
}

// New builds a Server bound to addr, serving events from eventsPath once
// the run has created it.
func New(addr, eventsPath string) *Server {
	s := &Server{addr: addr, eventsPath: eventsPath}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/run/events", s.handleEvents)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start runs the server in the background until ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
	go func() {
		_ = s.httpServer.ListenAndServe()
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleEvents tails the last N lines of run_events.jsonl. It reads the
// whole file rather than seeking from the end; the event log is expected
// to stay small relative to the manifest itself.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.eventsPath)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()

	const maxLines = 200
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, line := range lines {
		_, _ = w.Write([]byte(line))
		_, _ = w.Write([]byte("\n"))
	}
}
