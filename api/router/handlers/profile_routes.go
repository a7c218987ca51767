package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterProfileRoutes sets up the routes for profile management.
func RegisterProfileRoutes(r chi.Router, api *API) {
	r.Route("/profiles", func(subRouter chi.Router) {
		subRouter.Get("/", api.ListProfilesHandler)
		subRouter.Post("/", api.CreateProfileHandler)
		subRouter.Put("/{name}", api.RenameProfileHandler)
		subRouter.Delete("/{name}", api.DeleteProfileHandler)
		subRouter.Post("/{name}/select", api.SelectProfileHandler)
	})
}
