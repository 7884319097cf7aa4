// Package server exposes a query engine over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"vellum/engine"
	"vellum/hangar"
	httplib "vellum/lib/http"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type queryRequest struct {
	Statement sql.Statement     `json:"statement"`
	Params    []json.RawMessage `json:"params,omitempty"`
	// Position reads as of a write log position instead of the latest state.
	Position *uint64 `json:"position,omitempty"`
}

type queryResponse struct {
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

type columnResponse struct {
	Name     string         `json:"name"`
	Type     value.DataType `json:"type"`
	Nullable bool           `json:"nullable"`
}

type indexResponse struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type tableResponse struct {
	Name       string           `json:"name"`
	Columns    []columnResponse `json:"columns"`
	PrimaryKey []string         `json:"primary_key,omitempty"`
	Indexes    []indexResponse  `json:"indexes,omitempty"`
}

type Options struct {
	// Timeout bounds each request; zero means no bound.
	Timeout time.Duration
	// MaxConcurrentRequests caps the requests served at once; zero means no cap.
	MaxConcurrentRequests int
	// TraceSlowerThan dumps the timer trace of requests slower than this;
	// zero disables tracing.
	TraceSlowerThan time.Duration
}

type Server struct {
	engine *engine.QueryEngine
	logger *zap.Logger
}

func New(e *engine.QueryEngine, logger *zap.Logger) *Server {
	return &Server{engine: e, logger: logger}
}

// Router returns the HTTP routes of the server wrapped in the metrics
// middleware and whichever of the optional middlewares opts enables.
func (s *Server) Router(opts Options) *mux.Router {
	router := mux.NewRouter()
	router.Use(prometheusMiddleware)
	if opts.Timeout > 0 {
		router.Use(httplib.TimeoutMiddleware(opts.Timeout))
	}
	if opts.MaxConcurrentRequests > 0 {
		router.Use(httplib.RateLimitingMiddleware(opts.MaxConcurrentRequests))
	}
	if opts.TraceSlowerThan > 0 {
		router.Use(httplib.Tracer(s.logger, opts.TraceSlowerThan))
	}
	s.setHandlers(router)
	return router
}

func (s *Server) setHandlers(router *mux.Router) {
	router.HandleFunc("/query", s.Query).Methods(http.MethodPost)
	router.HandleFunc("/tables", s.Tables).Methods(http.MethodGet)
	router.HandleFunc("/tables/{name}", s.Table).Methods(http.MethodGet)
}

func readRequest(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	return ioutil.ReadAll(req.Body)
}

func (s *Server) Query(w http.ResponseWriter, req *http.Request) {
	data, err := readRequest(req)
	if err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	var request queryRequest
	if err := json.Unmarshal(data, &request); err != nil {
		s.fail(w, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	params, err := parseParams(request.Params)
	if err != nil {
		s.fail(w, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	pos := hangar.CurrentPosition
	if request.Position != nil {
		pos = hangar.Position(*request.Position)
	}
	res, err := s.engine.QueryAt(req.Context(), request.Statement, params, pos)
	if err != nil {
		s.fail(w, err, statusOf(err))
		return
	}
	resp := queryResponse{Columns: res.Columns, Rows: make([][]json.RawMessage, len(res.Rows))}
	for i, row := range res.Rows {
		resp.Rows[i] = make([]json.RawMessage, len(row))
		for j, v := range row {
			if resp.Rows[i][j], err = value.ToJson(v); err != nil {
				s.fail(w, err, http.StatusInternalServerError)
				return
			}
		}
	}
	s.write(w, resp)
}

func (s *Server) Tables(w http.ResponseWriter, _ *http.Request) {
	catalog := s.engine.Schema()
	tables := make([]tableResponse, 0)
	for _, name := range catalog.Tables() {
		if t, ok := catalog.Table(name); ok {
			tables = append(tables, describe(t))
		}
	}
	s.write(w, tables)
}

func (s *Server) Table(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	t, ok := s.engine.Schema().Table(name)
	if !ok {
		s.fail(w, queryerr.TableNotFound{Table: name}, http.StatusNotFound)
		return
	}
	s.write(w, describe(t))
}

func describe(t schema.TableDef) tableResponse {
	return tableResponse{
		Name: t.Name,
		Columns: lo.Map(t.Columns, func(c schema.ColumnDef, _ int) columnResponse {
			return columnResponse{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
		}),
		PrimaryKey: t.PrimaryKey,
		Indexes: lo.Map(t.Indexes, func(idx schema.IndexDef, _ int) indexResponse {
			return indexResponse{Name: idx.Name, Columns: idx.Columns}
		}),
	}
}

// statusOf maps an engine error to the status code of the response.
func statusOf(err error) int {
	switch {
	case errors.Is(err, queryerr.ErrTableNotFound):
		return http.StatusNotFound
	case queryerr.IsQueryError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error, status int) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) write(w http.ResponseWriter, v interface{}) {
	ser, err := json.Marshal(v)
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(ser); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
