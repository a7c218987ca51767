package handlers

import (
	"encoding/json"
	"net/http"

	"headerswitch/logger"
	"headerswitch/models"
)

// GetLiveRulesHandler returns the flat rule list the live proxy mode applies.
// @Summary Get live rules
// @Tags LiveRules
// @Produce json
// @Success 200 {array} models.HeaderRule
// @Router /live-rules [get]
func (api *API) GetLiveRulesHandler(w http.ResponseWriter, r *http.Request) {
	values, err := api.Settings.Get(r.Context(), api.LiveRulesKey)
	if err != nil {
		writeStoreError(w, "GetLiveRulesHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, models.ParseRuleList(values[api.LiveRulesKey]))
}

// SetLiveRulesHandler replaces the flat rule list. Running live interceptors pick it up
// through the change notification.
// @Summary Replace live rules
// @Tags LiveRules
// @Accept json
// @Produce json
// @Param rules body []models.HeaderRule true "Rule list"
// @Success 200 {array} models.HeaderRule
// @Failure 400 {object} models.ErrorResponse
// @Router /live-rules [put]
func (api *API) SetLiveRulesHandler(w http.ResponseWriter, r *http.Request) {
	var rules []models.HeaderRule
	if err := decodeBody(r, &rules); err != nil {
		logger.Error("SetLiveRulesHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if rules == nil {
		rules = []models.HeaderRule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		writeStoreError(w, "SetLiveRulesHandler", err)
		return
	}
	if err := api.Settings.Set(r.Context(), map[string]string{api.LiveRulesKey: string(raw)}); err != nil {
		writeStoreError(w, "SetLiveRulesHandler", err)
		return
	}
	logger.Info("SetLiveRulesHandler: stored %d live rules under %q", len(rules), api.LiveRulesKey)
	writeJSON(w, http.StatusOK, rules)
}
