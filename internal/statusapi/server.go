// Package statusapi is the read-only HTTP diagnostics surface: stream
// listing/detail and the Prometheus scrape endpoint (SPEC_FULL.md
// Domain Stack, go-chi component).
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/stream"
	"github.com/aes67bridge/aes67bridge/internal/streamid"
)

// StreamLister is the subset of stream.Manager this API needs.
type StreamLister interface {
	ActiveStreams() []stream.StreamInfo
	Info(id streamid.ID) (stream.StreamInfo, error)
}

// Server is the read-only status/diagnostics HTTP surface. It never
// mutates stream state: every route here is a GET.
type Server struct {
	router  *chi.Mux
	streams StreamLister
	logger  *slog.Logger
}

// NewServer creates the status API with all routes mounted.
func NewServer(streams StreamLister, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		streams: streams,
		logger:  logger.With("subsystem", "statusapi"),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Get("/streams", s.handleListStreams)
	r.Get("/streams/{id}", s.handleGetStream)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", s.handleHealthz)
}

// streamView is the wire shape for one stream in the status API: enough
// to drive a dashboard without exposing internal mutation handles.
type streamView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Direction    string `json:"direction"`
	IsConnected  bool   `json:"is_connected"`
	SampleRate   int    `json:"sample_rate"`
	NumChannels  int    `json:"num_channels"`
	PacketsTotal uint64 `json:"packets_total"`
	BytesTotal   uint64 `json:"bytes_total"`
	Lost         uint64 `json:"packets_lost"`
	Malformed    uint64 `json:"packets_malformed"`
	Underruns    uint64 `json:"underruns"`
	SendErrors   uint64 `json:"send_errors"`
}

func toStreamView(info stream.StreamInfo) streamView {
	return streamView{
		ID:           info.ID.String(),
		Name:         info.Name,
		Direction:    info.Direction,
		IsConnected:  info.IsConnected,
		SampleRate:   info.Descriptor.SampleRate,
		NumChannels:  info.Descriptor.NumChannels,
		PacketsTotal: info.PacketsTotal,
		BytesTotal:   info.BytesTotal,
		Lost:         info.Lost,
		Malformed:    info.Malformed,
		Underruns:    info.Underruns,
		SendErrors:   info.SendErrors,
	}
}

// handleListStreams handles GET /streams.
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	active := s.streams.ActiveStreams()
	views := make([]streamView, 0, len(active))
	for _, info := range active {
		views = append(views, toStreamView(info))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetStream handles GET /streams/{id}.
func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := streamid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	info, err := s.streams.Info(id)
	if err != nil {
		if kind, ok := aerr.KindOf(err); ok && kind == aerr.KindNotFound {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		s.logger.Error("status lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toStreamView(info))
}

// handleHealthz handles GET /healthz, a liveness probe independent of
// stream state.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: msg})
}
