package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/session"
	"github.com/couchcryptid/flood-extent-service/internal/state"
	"github.com/couchcryptid/flood-extent-service/internal/summary"
	"github.com/couchcryptid/flood-extent-service/internal/viewsync"
)

const maxMutationBytes = 64 << 10

// Session is the part of session.Session the API serves.
type Session interface {
	sharedobs.ReadinessChecker
	Snapshot() state.ViewState
	Pending() (state.ViewState, bool)
	Index() domain.Index
	LastRun() (discovery.Result, bool)
	Summary() summary.Table
	Render() []domain.Command
	Apply(ctx context.Context, m state.Mutation) (state.ViewState, error)
	Refresh(ctx context.Context) error
	Geometry(ctx context.Context, key domain.Key) (*geojson.FeatureCollection, error)
}

// CommandLog replays published command batches.
type CommandLog interface {
	Since(seq uint64) ([]domain.CommandBatch, bool)
}

// Server exposes health, readiness, metrics, and the session API.
type Server struct {
	httpServer *http.Server
	session    Session
	commands   CommandLog
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the health routes and the /api routes.
func NewServer(addr string, sess Session, commands CommandLog, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		session:  sess,
		commands: commands,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(sess))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/index", s.handleIndex)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/state", s.handleMutation)
	mux.HandleFunc("GET /api/commands", s.handleCommands)
	mux.HandleFunc("GET /api/render", s.handleRender)
	mux.HandleFunc("GET /api/datasets/{year}/{stage}/geometry", s.handleGeometry)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type datasetResponse struct {
	Key          domain.Key      `json:"key"`
	ID           string          `json:"id"`
	Label        string          `json:"label,omitempty"`
	Description  string          `json:"description,omitempty"`
	SourceRef    string          `json:"source_ref"`
	Metrics      domain.Metrics  `json:"metrics"`
	Severity     domain.Severity `json:"severity"`
	GeometryPath string          `json:"geometry_path"`
}

type indexResponse struct {
	Years        []int                 `json:"years"`
	Datasets     []datasetResponse     `json:"datasets"`
	Candidates   int                   `json:"candidates"`
	Excluded     []discovery.Exclusion `json:"excluded"`
	DiscoveredAt *time.Time            `json:"discovered_at,omitempty"`
	DurationMS   int64                 `json:"duration_ms"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	idx := s.session.Index()
	resp := indexResponse{
		Years:    idx.Years(),
		Datasets: make([]datasetResponse, 0, idx.Len()),
		Excluded: []discovery.Exclusion{},
	}
	for _, rec := range idx.Records() {
		resp.Datasets = append(resp.Datasets, datasetResponse{
			Key:          rec.Key(),
			ID:           rec.Descriptor.ID(),
			Label:        rec.Descriptor.Label,
			Description:  rec.Descriptor.Description,
			SourceRef:    rec.SourceRef,
			Metrics:      rec.Metrics,
			Severity:     rec.Severity,
			GeometryPath: viewsync.GeometryPath(rec.Key()),
		})
	}
	if run, ok := s.session.LastRun(); ok {
		resp.Candidates = run.Candidates
		if run.Excluded != nil {
			resp.Excluded = run.Excluded
		}
		at := run.StartedAt
		resp.DiscoveredAt = &at
		resp.DurationMS = run.Duration.Milliseconds()
	}
	if resp.Years == nil {
		resp.Years = []int{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

type stateResponse struct {
	State   state.ViewState  `json:"state"`
	Pending *state.ViewState `json:"pending,omitempty"`
}

func (s *Server) currentState() stateResponse {
	resp := stateResponse{State: s.session.Snapshot()}
	if p, ok := s.session.Pending(); ok {
		resp.Pending = &p
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.currentState())
}

// handleMutation applies one mutation. Selection changes answer 202 with the
// transition target in pending; presentation changes answer 200.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	var m state.Mutation
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMutationBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.session.Apply(r.Context(), m); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := s.currentState()
	status := http.StatusOK
	if resp.Pending != nil {
		status = http.StatusAccepted
	}
	sharedobs.WriteJSON(w, status, resp)
}

type commandsResponse struct {
	Batches []domain.CommandBatch `json:"batches"`
	// Complete is false when batches after since were evicted; the client
	// should repaint from /api/render.
	Complete bool `json:"complete"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be a non-negative integer"))
			return
		}
		since = n
	}
	batches, complete := s.commands.Since(since)
	sharedobs.WriteJSON(w, http.StatusOK, commandsResponse{Batches: batches, Complete: complete})
}

func (s *Server) handleRender(w http.ResponseWriter, _ *http.Request) {
	cmds := s.session.Render()
	if cmds == nil {
		cmds = []domain.Command{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("year must be an integer"))
		return
	}
	stage, err := domain.ParseStage(r.PathValue("stage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fc, err := s.session.Geometry(r.Context(), domain.Key{Year: year, Stage: stage})
	if err != nil {
		s.logger.Debug("geometry request failed", "year", year, "stage", stage, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client may have gone away
}

// summaryRow mirrors summary.Row with missing values as null, since JSON has
// no NaN.
type summaryRow struct {
	Year         int      `json:"year"`
	Mu           *float64 `json:"mu"`
	Sigma        *float64 `json:"sigma"`
	KValue       *float64 `json:"k_value"`
	Threshold    *float64 `json:"threshold"`
	DiffMin      *float64 `json:"diff_min"`
	DiffMax      *float64 `json:"diff_max"`
	ImagesBefore *float64 `json:"imgs_before"`
	ImagesAfter  *float64 `json:"imgs_after"`
}

func known(v float64) *float64 {
	if !summary.Known(v) {
		return nil
	}
	return &v
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	table := s.session.Summary()
	rows := make([]summaryRow, 0, len(table))
	for _, year := range table.Years() {
		r := table[year]
		rows = append(rows, summaryRow{
			Year:         r.Year,
			Mu:           known(r.Mu),
			Sigma:        known(r.Sigma),
			KValue:       known(r.KValue),
			Threshold:    known(r.Threshold),
			DiffMin:      known(r.DiffMin),
			DiffMax:      known(r.DiffMax),
			ImagesBefore: known(r.ImagesBefore),
			ImagesAfter:  known(r.ImagesAfter),
		})
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"datasets": s.session.Index().Len(),
		"state":    s.session.Snapshot(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrInvalidMutation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoData), errors.Is(err, session.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
