package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/amaos/pkg/model"
)

type taskList struct {
	Tasks    []model.Task `json:"tasks"`
	Count    int          `json:"count"`
	Capacity int          `json:"capacity"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tasks := s.kernel.Tasks()
	if tasks == nil {
		tasks = []model.Task{}
	}
	respondOK(w, reqID, taskList{Tasks: tasks, Count: len(tasks), Capacity: s.kernel.QueueCap()})
}

func (s *Server) handleLaunchTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewError(model.CodeValidation, "invalid JSON body: "+err.Error()))
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewError(model.CodeValidation, err.Error()))
		return
	}

	task, err := s.kernel.Launch(r.Context(), req.Name, kind)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, task)
}

func (s *Server) handleTerminateTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewError(model.CodeValidation, "pid must be an integer"))
		return
	}

	task, err := s.kernel.Terminate(r.Context(), pid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, task)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.kernel.Resources())
}
