package httpapi

import "net/http"

// Router wires the routes spec §6 names onto a ServeMux, behind the same
// concurrency-limiting semaphore middleware the teacher's router.go uses.
func Router(h *Handlers, maxInflight int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/fx-artifacts", h.CreateFxArtifact)    // POST
	mux.HandleFunc("/v1/fx-artifacts/", h.GetFxArtifact)      // GET /v1/fx-artifacts/{id}
	mux.HandleFunc("/v1/runs", h.CreateRun)                   // POST
	mux.HandleFunc("/v1/runs/", h.GetRunReport)               // GET /v1/runs/{dataset_version_id}/{run_id}/report

	return withConcurrencyLimit(mux, maxInflight)
}

func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy"}`))
		}
	})
}
