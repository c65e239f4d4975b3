package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts run endpoints under /api/runs. POST runs a trigger
// now and responds when the run finishes.
func RegisterRoutes(r chi.Router, s *Scheduler) {
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", handleList(s))
		r.Get("/{trigger}", handleLastRun(s))
		r.Post("/{trigger}", handleRun(s))
	})
}

func handleList(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs := []RunResult{}
		for _, t := range Triggers {
			if run, ok := s.LastRun(t); ok {
				runs = append(runs, run)
			}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleLastRun(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trigger, err := ParseTrigger(chi.URLParam(r, "trigger"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		run, ok := s.LastRun(trigger)
		if !ok {
			writeJSON(w, http.StatusOK, RunResult{Trigger: trigger, State: StateIdle})
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleRun(s *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trigger, err := ParseTrigger(chi.URLParam(r, "trigger"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		run, err := s.Run(r.Context(), trigger, s.now())
		if errors.Is(err, ErrAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
