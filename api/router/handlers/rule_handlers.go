package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"headerswitch/core"
	"headerswitch/logger"
	"headerswitch/models"

	"github.com/go-chi/chi/v5"
)

type rulesResponse struct {
	Profile string              `json:"profile"`
	Rules   []models.HeaderRule `json:"rules"`
}

type addRuleResponse struct {
	Index int `json:"index"`
	rulesResponse
}

type updateRulePayload struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (api *API) activeRules() rulesResponse {
	rules := api.Profiles.ActiveRules()
	if rules == nil {
		rules = []models.HeaderRule{}
	}
	return rulesResponse{Profile: api.Profiles.CurrentProfile(), Rules: rules}
}

func ruleIndexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: rule index %q is not a number", core.ErrIndexOutOfRange, raw)
	}
	return index, nil
}

// ListRulesHandler returns the active profile's rules.
// @Summary List rules of the active profile
// @Tags Rules
// @Produce json
// @Success 200 {object} rulesResponse
// @Router /rules [get]
func (api *API) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.activeRules())
}

// AddRuleHandler appends an enabled, empty rule to the active profile.
// @Summary Add rule
// @Tags Rules
// @Produce json
// @Success 201 {object} addRuleResponse
// @Router /rules [post]
func (api *API) AddRuleHandler(w http.ResponseWriter, r *http.Request) {
	index, err := api.Profiles.AddRule(r.Context())
	if err != nil {
		writeStoreError(w, "AddRuleHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, addRuleResponse{Index: index, rulesResponse: api.activeRules()})
}

// UpdateRuleHandler sets one field of a rule.
// @Summary Update rule field
// @Tags Rules
// @Accept json
// @Produce json
// @Param index path int true "Rule index"
// @Param update body updateRulePayload true "Field (enabled, name, value) and new value"
// @Success 200 {object} rulesResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /rules/{index} [patch]
func (api *API) UpdateRuleHandler(w http.ResponseWriter, r *http.Request) {
	index, err := ruleIndexParam(r)
	if err != nil {
		writeStoreError(w, "UpdateRuleHandler", err)
		return
	}
	var payload updateRulePayload
	if err := decodeBody(r, &payload); err != nil {
		logger.Error("UpdateRuleHandler: Error decoding request body for rule %d: %v", index, err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	field, err := core.ParseRuleField(payload.Field)
	if err != nil {
		writeStoreError(w, "UpdateRuleHandler", err)
		return
	}
	if err := api.Profiles.UpdateRule(r.Context(), index, field, payload.Value); err != nil {
		writeStoreError(w, "UpdateRuleHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, api.activeRules())
}

// DeleteRuleHandler removes a rule from the active profile.
// @Summary Delete rule
// @Tags Rules
// @Produce json
// @Param index path int true "Rule index"
// @Success 200 {object} rulesResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /rules/{index} [delete]
func (api *API) DeleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	index, err := ruleIndexParam(r)
	if err != nil {
		writeStoreError(w, "DeleteRuleHandler", err)
		return
	}
	if err := api.Profiles.DeleteRule(r.Context(), index); err != nil {
		writeStoreError(w, "DeleteRuleHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, api.activeRules())
}
