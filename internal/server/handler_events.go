package server

import (
	"net/http"
	"strconv"

	"github.com/me/amaos/internal/store"
	"github.com/me/amaos/pkg/model"
)

type eventList struct {
	Events []model.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleListEvents pages through the journal. ?type= and ?task= filter.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusNotFound,
			model.NewError(model.CodeNotFound, "event journal is disabled"))
		return
	}

	q := r.URL.Query()
	opts := store.ListOptions{Type: model.EventType(q.Get("type"))}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset, "task": &opts.TaskID} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewError(model.CodeValidation, name+" must be an integer"))
			return
		}
		*dst = n
	}
	opts.Clamp()

	events, total, err := s.store.ListEvents(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			model.WrapError(model.CodeInternal, "list events", err))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondOK(w, reqID, eventList{Events: events, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}
