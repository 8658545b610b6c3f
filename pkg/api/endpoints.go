package api

import (
	"context"
	"fmt"

	"github.com/theranorm/theranorm/pkg/kit"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/registry"
	"github.com/theranorm/theranorm/pkg/store"
	"github.com/theranorm/theranorm/pkg/therapy"
)

// Shared request/response types used by both HTTP and MCP transports.

type normalizeReq struct {
	Query string
	Opts  *query.Options
}

type searchReq struct {
	Query string
	Opts  *query.Options
}

// normalizeResponse adds the outcome tag to the wire form; internally the
// outcome is an enum, not a string.
type normalizeResponse struct {
	Outcome string `json:"outcome"`
	*query.Result
}

type sourcesResponse struct {
	Sources []store.SourceInfo `json:"sources"`
}

type rebuildResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
	Groups  int    `json:"groups"`
}

// Endpoints returns the core kit.Endpoints backed by the engine and registry.

func normalizeEndpoint(eng *query.Engine) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*normalizeReq)
		res, err := eng.Normalize(req.Query, req.Opts)
		if err != nil {
			return nil, err
		}
		return &normalizeResponse{Outcome: res.Outcome.String(), Result: res}, nil
	}
}

func searchEndpoint(eng *query.Engine) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*searchReq)
		return eng.Search(req.Query, req.Opts)
	}
}

func listSourcesEndpoint(reg *registry.Registry) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		stats, err := reg.Stats(ctx)
		if err != nil {
			return nil, err
		}
		if stats.Sources == nil {
			stats.Sources = []store.SourceInfo{}
		}
		return sourcesResponse{Sources: stats.Sources}, nil
	}
}

func rebuildEndpoint(reg *registry.Registry) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		if err := reg.Rebuild(ctx); err != nil {
			return nil, err
		}
		stats, err := reg.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return rebuildResponse{Status: "rebuilt", Records: stats.Records, Groups: stats.Groups}, nil
	}
}

// parseSources resolves a list of raw source names, rejecting unknown ones so
// a typo does not silently widen or narrow the restriction.
func parseSources(raw []string) ([]therapy.SourceName, error) {
	var out []therapy.SourceName
	for _, name := range raw {
		src, ok := therapy.ParseSource(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, src)
	}
	return out, nil
}
