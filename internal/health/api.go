package health

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Api struct {
	statusService *Service
}

func NewApi(statusService *Service) *Api {
	return &Api{
		statusService: statusService,
	}
}

func (api *Api) RegisterHandlers(r chi.Router) {
	r.Get("/health", api.GetHealth)
}

func (api *Api) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if api.statusService.IsShuttingDown() {
		status, code = "shutting down", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		slog.Error("encoding health response", "err", err)
	}
}
