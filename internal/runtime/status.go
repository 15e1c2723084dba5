package runtime

import (
	"net/http"

	"github.com/drblury/faultline/internal/runtime/jsoncodec"
)

// Status is the document served by StatusHandler.
type Status struct {
	Client    map[string]any  `json:"client"`
	Consumers []string        `json:"consumers"`
	Metrics   MetricsSnapshot `json:"metrics"`
}

// Status describes the active client with a redacted DSN, the ledger and the
// report counters. Client is nil until a client has been created.
func (r *Registry) Status() Status {
	st := Status{
		Consumers: r.Consumers(),
		Metrics:   r.metrics.Snapshot(),
	}
	if c := r.active.Load(); c != nil {
		st.Client = c.Config().Fields()
		st.Client["queue_size"] = c.cfg.QueueSize
		st.Client["dsn_from_env"] = c.cfg.DSNFromEnv
	}
	return st
}

// StatusHandler serves Status as JSON. It never creates a client.
func (r *Registry) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := jsoncodec.Encode(w, r.Status()); err != nil {
			r.logger.Error("Failed to encode status", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}
