package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRuleRoutes sets up the routes editing the active profile's rules.
func RegisterRuleRoutes(r chi.Router, api *API) {
	r.Route("/rules", func(subRouter chi.Router) {
		subRouter.Get("/", api.ListRulesHandler)
		subRouter.Post("/", api.AddRuleHandler)
		subRouter.Patch("/{index}", api.UpdateRuleHandler)
		subRouter.Delete("/{index}", api.DeleteRuleHandler)
	})
}
