package handlers

import (
	"net/http"

	"headerswitch/models"
)

type installedDirectivesResponse struct {
	Revision string             `json:"revision"`
	Rules    []models.Directive `json:"rules"`
}

// InstalledDirectivesHandler returns the rules currently installed in the engine.
// @Summary Installed directives
// @Tags Directives
// @Produce json
// @Success 200 {object} installedDirectivesResponse
// @Router /directives [get]
func (api *API) InstalledDirectivesHandler(w http.ResponseWriter, r *http.Request) {
	rules, revision, err := api.Engine.DynamicRules(r.Context())
	if err != nil {
		writeStoreError(w, "InstalledDirectivesHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, installedDirectivesResponse{Revision: revision, Rules: rules})
}

// CompiledDirectivesHandler compiles the active profile without installing it. The body is
// a rules.json array.
// @Summary Compile active profile
// @Tags Directives
// @Produce json
// @Success 200 {array} models.Directive
// @Router /directives/compiled [get]
func (api *API) CompiledDirectivesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Profiles.CompiledDirectives())
}
