package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterLiveRuleRoutes(r chi.Router, api *API) {
	r.Get("/live-rules", api.GetLiveRulesHandler)
	r.Put("/live-rules", api.SetLiveRulesHandler)
}
