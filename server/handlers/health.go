package handlers

import "net/http"

// HandleHealth is a liveness check that returns "ok" while the process serves requests.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
