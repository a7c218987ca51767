package api

import (
	"net/http"

	"headerswitch/api/router/handlers"
	"headerswitch/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the API router. All registered paths are relative to the /api base path.
func NewRouter(deps *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	handlers.RegisterHealthRoutes(r)
	handlers.RegisterProfileRoutes(r, deps)
	handlers.RegisterRuleRoutes(r, deps)
	handlers.RegisterDirectiveRoutes(r, deps)
	handlers.RegisterLiveRuleRoutes(r, deps)
	r.Get("/swagger/doc.json", swaggerDocHandler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return r
}

// Mount serves the API router under /api.
func Mount(apiRouter http.Handler) http.Handler {
	mux := chi.NewRouter()
	mux.Mount("/api", apiRouter)
	return mux
}
