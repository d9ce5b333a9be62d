package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes builds the HTTP router: health check at the root and the
// WebSocket endpoint at /ws.
func SetupRoutes(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub)).Methods(http.MethodGet)
	return r
}
