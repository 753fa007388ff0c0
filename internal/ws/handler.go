package ws

import (
	"net/http"

	"ems3/internal/domain"
)

type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
}

// Handler exposes GET /ws/servers/{id}/console for known servers.
func Handler(m *HubManager, registry Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/servers/{id}/console", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		srv, err := registry.GetServerByID(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if srv == nil {
			http.Error(w, "server not found", http.StatusNotFound)
			return
		}
		m.ServeConsole(w, r, id)
	})
	return mux
}
