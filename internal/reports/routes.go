package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/pulse/internal/db"
)

// SpecRequest is the JSON body of POST /api/reports. Days use YYYY-MM-DD.
type SpecRequest struct {
	CompanyID               string `json:"company_id"`
	DepartmentID            string `json:"department_id,omitempty"`
	Type                    Type   `json:"type"`
	PeriodStart             string `json:"period_start"`
	PeriodEnd               string `json:"period_end"`
	GenerateInsights        bool   `json:"generate_insights"`
	GenerateRecommendations bool   `json:"generate_recommendations"`
	IncludeSections         bool   `json:"include_sections"`
}

// Spec converts the request into a Spec, parsing days in loc.
func (req SpecRequest) Spec(loc *time.Location) (Spec, error) {
	start, err := time.ParseInLocation(db.DayLayout, req.PeriodStart, loc)
	if err != nil {
		return Spec{}, fmt.Errorf("period_start: %w", err)
	}
	end, err := time.ParseInLocation(db.DayLayout, req.PeriodEnd, loc)
	if err != nil {
		return Spec{}, fmt.Errorf("period_end: %w", err)
	}
	typ := req.Type
	if typ == "" {
		typ = TypeCustom
	}
	spec := Spec{
		CompanyID:               req.CompanyID,
		DepartmentID:            req.DepartmentID,
		Type:                    typ,
		PeriodStart:             start,
		PeriodEnd:               end,
		GenerateInsights:        req.GenerateInsights,
		GenerateRecommendations: req.GenerateRecommendations,
		IncludeSections:         req.IncludeSections,
	}
	return spec, spec.Validate()
}

// RegisterRoutes mounts report endpoints under /api/reports.
func RegisterRoutes(r chi.Router, store *Store, queue *Queue, loc *time.Location) {
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleSubmit(queue, loc))
		r.Get("/{id}", handleGet(store))
		r.Get("/{id}/html", handleHTML(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{CompanyID: q.Get("company_id"), Status: Status(q.Get("status"))}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		list, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []Report{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleSubmit(queue *Queue, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SpecRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		spec, err := req.Spec(loc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := queue.Submit(r.Context(), spec)
		switch {
		case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(StatusPending)})
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := lookup(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleHTML(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := lookup(w, r, store)
		if !ok {
			return
		}
		page, err := RenderHTML(report)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

func lookup(w http.ResponseWriter, r *http.Request, store *Store) (*Report, bool) {
	report, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
