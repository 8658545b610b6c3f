// Package api exposes the normalization engine over HTTP and MCP. Both
// transports dispatch to the same transport-agnostic endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/theranorm/theranorm/pkg/kit"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/registry"
)

// NewRouter returns an http.Handler with all API routes.
func NewRouter(eng *query.Engine, reg *registry.Registry) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		normalize:   normalizeEndpoint(eng),
		search:      searchEndpoint(eng),
		listSources: listSourcesEndpoint(reg),
		rebuild:     rebuildEndpoint(reg),
		reg:         reg,
	}

	mux.HandleFunc("GET /v1/normalize/{term}", h.handleNormalize)
	mux.HandleFunc("GET /v1/search/{term}", h.handleSearch)
	mux.HandleFunc("GET /v1/sources", h.handleListSources)
	mux.HandleFunc("POST /v1/rebuild", h.handleRebuild)
	mux.HandleFunc("GET /v1/rebuild", methodNotAllowed)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(mux)
}

type handler struct {
	normalize   kit.Endpoint
	search      kit.Endpoint
	listSources kit.Endpoint
	rebuild     kit.Endpoint
	reg         *registry.Registry
}

// --- normalize ---

func (h *handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	term := r.PathValue("term")
	opts, err := parseOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.normalize(r.Context(), &normalizeReq{Query: term, Opts: opts})
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- search ---

func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.PathValue("term")
	opts, err := parseOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.search(r.Context(), &searchReq{Query: term, Opts: opts})
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- sources ---

func (h *handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	resp, err := h.listSources(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- rebuild ---

func (h *handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	resp, err := h.rebuild(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
	Groups  int    `json:"groups"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reg.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Records: stats.Records,
		Groups:  stats.Groups,
	})
}

// --- helpers ---

func parseOpts(r *http.Request) (*query.Options, error) {
	opts := &query.Options{}
	if v := r.URL.Query().Get("sources"); v != "" {
		sources, err := parseSources(strings.Split(v, ","))
		if err != nil {
			return nil, err
		}
		opts.Sources = sources
	}
	if v := r.URL.Query().Get("infer"); v == "false" || v == "0" {
		opts.NoInfer = true
	}
	return opts, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	var invalid *query.InvalidQueryError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
