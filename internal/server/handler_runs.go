package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/arc/internal/supervisor"
	"github.com/me/arc/pkg/model"
)

type statusResponse struct {
	RunID string `json:"run_id"`
	supervisor.Snapshot
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rp := replyTo(w, r)
	if s.status == nil {
		rp.fail(model.NewUnavailableError("no run in progress"))
		return
	}
	rp.data(statusResponse{RunID: s.runID, Snapshot: s.status.Snapshot()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	rp := replyTo(w, r)
	if !s.requireStore(rp) {
		return
	}
	opts, apiErr := model.ParseListOptions(r.URL.Query())
	if apiErr != nil {
		rp.fail(apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		rp.fail(model.NewInternalError(err))
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	rp.page(runs, opts.Page(len(runs), total))
}

// lookupRun answers 404 and returns nil when the run is not journaled.
func (s *Server) lookupRun(rp reply, r *http.Request) *model.Run {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		rp.fail(model.NewInternalError(err))
		return nil
	}
	if run == nil {
		rp.fail(model.NewNotFoundError("run", id))
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rp := replyTo(w, r)
	if !s.requireStore(rp) {
		return
	}
	if run := s.lookupRun(rp, r); run != nil {
		rp.data(run)
	}
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	rp := replyTo(w, r)
	if !s.requireStore(rp) {
		return
	}
	run := s.lookupRun(rp, r)
	if run == nil {
		return
	}

	results, err := s.store.ListResults(r.Context(), run.ID)
	if err != nil {
		rp.fail(model.NewInternalError(err))
		return
	}
	if results == nil {
		results = []*model.ResultEntry{}
	}
	all := model.ListOptions{Limit: len(results)}
	rp.page(results, all.Page(len(results), len(results)))
}

func (s *Server) requireStore(rp reply) bool {
	if s.store == nil {
		rp.fail(model.NewUnavailableError("run journal is disabled"))
		return false
	}
	return true
}
