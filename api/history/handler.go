package history

import (
	"encoding/json"
	"net/http"
	"time"

	corehistory "github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/model"
)

// NewHandler returns an HTTP handler exposing the spot history via GET /api/history.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
// Supported filters are camera_id, since and until (RFC3339).
func NewHandler(log corehistory.Log, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := corehistory.Query{CameraID: r.URL.Query().Get("camera_id")}
		var err error
		if q.Start, err = parseTime(r.URL.Query().Get("since")); err != nil {
			http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
			return
		}
		if q.End, err = parseTime(r.URL.Query().Get("until")); err != nil {
			http.Error(w, "invalid until: "+err.Error(), http.StatusBadRequest)
			return
		}
		records, err := log.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []model.HistoryRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
