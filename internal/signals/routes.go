package signals

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxAudioBytes bounds an uploaded voice message.
const maxAudioBytes = 25 << 20

// RegisterRoutes mounts turn ingestion and signal lookup endpoints.
func RegisterRoutes(r chi.Router, ingestor *Ingestor, store *Store) {
	r.Post("/api/turns", handleTurn(ingestor))
	r.Post("/api/turns/audio", handleAudioTurn(ingestor))
	r.Get("/api/users/{id}/signals", handleUserSignals(store))
	r.Get("/api/users/{id}/memories", handleUserMemories(store))
	r.Post("/api/users/{id}/proactive-question", handleProactiveQuestion(ingestor))
}

func handleTurn(ingestor *Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var turn Turn
		if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if turn.UserID == "" || turn.CompanyID == "" || turn.Message == "" {
			http.Error(w, "user_id, company_id and message are required", http.StatusBadRequest)
			return
		}
		res, err := ingestor.Process(r.Context(), turn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleAudioTurn accepts a multipart form with a "turn" JSON field and an
// "audio" file.
func handleAudioTurn(ingestor *Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+1<<20)
		if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		var turn Turn
		if err := json.Unmarshal([]byte(r.FormValue("turn")), &turn); err != nil {
			http.Error(w, "invalid turn field", http.StatusBadRequest)
			return
		}
		if turn.UserID == "" || turn.CompanyID == "" {
			http.Error(w, "user_id and company_id are required", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, "audio file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "reading audio", http.StatusBadRequest)
			return
		}

		res, err := ingestor.ProcessAudio(r.Context(), turn, audio, header.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func handleUserSignals(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := store.ListByUser(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []EmotionSignal{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleUserMemories(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.MemoriesByUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []MemoryCandidate{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleProactiveQuestion(ingestor *Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ingestor.ProactiveQuestion(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNoMemories) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
