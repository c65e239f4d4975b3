package aggregate

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/pulse/internal/db"
)

// RegisterRoutes mounts aggregate and trend lookups.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/api/aggregates/{scope}/{id}/{day}", handleGet(store))
	r.Get("/api/companies/{id}/trends/{day}", handleTrends(store))
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := ParseScope(chi.URLParam(r, "scope"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		day := chi.URLParam(r, "day")
		if _, err := time.Parse(db.DayLayout, day); err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		agg, err := store.Get(r.Context(), scope, chi.URLParam(r, "id"), day)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, agg)
	}
}

func handleTrends(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trends, err := store.Trends(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "day"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if trends == nil {
			trends = []Trend{}
		}
		writeJSON(w, http.StatusOK, trends)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
