package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterDirectiveRoutes(r chi.Router, api *API) {
	r.Get("/directives", api.InstalledDirectivesHandler)
	r.Get("/directives/compiled", api.CompiledDirectivesHandler)
}
