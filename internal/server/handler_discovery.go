package server

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// routeSummaries documents the public routes. The index takes paths and
// methods from the router itself and lists only documented paths.
var routeSummaries = map[string]string{
	"/api/v1/":                  "this index",
	"/api/v1/health":            "liveness, build and whether a run or journal is attached",
	"/api/v1/status":            "live worker slots, queue depths and status tally",
	"/api/v1/runs/":             "journaled runs, newest first (?limit, ?offset, ?state)",
	"/api/v1/runs/{id}/":        "one journaled run with its final tally",
	"/api/v1/runs/{id}/results": "status records consumed during the run, in order",
	"/metrics":                  "Prometheus exposition",
}

type route struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
	Summary string   `json:"summary,omitempty"`
}

type apiIndex struct {
	Service string  `json:"service"`
	API     string  `json:"api"`
	RunID   string  `json:"run_id,omitempty"`
	Journal bool    `json:"journal"`
	Routes  []route `json:"routes"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	rp := replyTo(w, r)

	byPath := make(map[string]*route)
	err := chi.Walk(s.router, func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		summary, public := routeSummaries[path]
		if !public {
			return nil
		}
		rt, ok := byPath[path]
		if !ok {
			rt = &route{Path: path, Summary: summary}
			byPath[path] = rt
		}
		rt.Methods = append(rt.Methods, method)
		return nil
	})
	if err != nil {
		s.logger.Error("walk routes", "error", err)
	}

	idx := apiIndex{Service: "arc", API: "v1", RunID: s.runID, Journal: s.store != nil}
	for _, rt := range byPath {
		slices.Sort(rt.Methods)
		idx.Routes = append(idx.Routes, *rt)
	}
	slices.SortFunc(idx.Routes, func(a, b route) int { return cmp.Compare(a.Path, b.Path) })
	rp.data(idx)
}
