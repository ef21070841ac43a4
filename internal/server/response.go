package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/me/arc/pkg/model"
)

// reply writes model.Response envelopes for one request.
type reply struct {
	w     http.ResponseWriter
	reqID string
}

func replyTo(w http.ResponseWriter, r *http.Request) reply {
	return reply{w: w, reqID: RequestIDFromContext(r.Context())}
}

func (rp reply) data(v any) {
	rp.send(http.StatusOK, model.Response{Data: v})
}

func (rp reply) page(v any, pg *model.Pagination) {
	rp.send(http.StatusOK, model.Response{Data: v, Pagination: pg})
}

// fail sends err with the status code its error code maps to.
func (rp reply) fail(err *model.APIError) {
	rp.send(err.Code.HTTPStatus(), model.Response{Error: err})
}

func (rp reply) send(code int, resp model.Response) {
	resp.RequestID = rp.reqID
	resp.Timestamp = time.Now().UTC()
	resp.Status = model.ResponseOK
	if resp.Error != nil {
		resp.Status = model.ResponseError
	}

	h := rp.w.Header()
	h.Set("Content-Type", "application/json")
	// Status and journal contents change while a run is in progress.
	h.Set("Cache-Control", "no-store")
	rp.w.WriteHeader(code)
	json.NewEncoder(rp.w).Encode(resp)
}
