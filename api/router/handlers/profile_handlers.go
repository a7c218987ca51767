package handlers

import (
	"net/http"

	"headerswitch/logger"
	"headerswitch/models"

	"github.com/go-chi/chi/v5"
)

type profilesResponse struct {
	Current  string                `json:"current"`
	Profiles []models.NamedProfile `json:"profiles"`
}

type profileNamePayload struct {
	Name string `json:"name"`
}

func (api *API) profilesSnapshot() profilesResponse {
	state := api.Profiles.Snapshot()
	return profilesResponse{Current: state.CurrentProfile, Profiles: state.Profiles.List()}
}

// ListProfilesHandler returns every profile in order and the current selection.
// @Summary List profiles
// @Tags Profiles
// @Produce json
// @Success 200 {object} profilesResponse
// @Router /profiles [get]
func (api *API) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.profilesSnapshot())
}

// CreateProfileHandler creates a profile and selects it.
// @Summary Create profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param profile body profileNamePayload true "Profile name"
// @Success 201 {object} profilesResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profiles [post]
func (api *API) CreateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var payload profileNamePayload
	if err := decodeBody(r, &payload); err != nil {
		logger.Error("CreateProfileHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := api.Profiles.CreateProfile(r.Context(), payload.Name); err != nil {
		writeStoreError(w, "CreateProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, api.profilesSnapshot())
}

// RenameProfileHandler renames the profile in the path.
// @Summary Rename profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param name path string true "Current profile name"
// @Param profile body profileNamePayload true "New profile name"
// @Success 200 {object} profilesResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profiles/{name} [put]
func (api *API) RenameProfileHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var payload profileNamePayload
	if err := decodeBody(r, &payload); err != nil {
		logger.Error("RenameProfileHandler: Error decoding request body for %q: %v", name, err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := api.Profiles.RenameProfile(r.Context(), name, payload.Name); err != nil {
		writeStoreError(w, "RenameProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, api.profilesSnapshot())
}

// DeleteProfileHandler deletes the profile in the path.
// @Summary Delete profile
// @Tags Profiles
// @Produce json
// @Param name path string true "Profile name"
// @Success 200 {object} profilesResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profiles/{name} [delete]
func (api *API) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.Profiles.DeleteProfile(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeStoreError(w, "DeleteProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, api.profilesSnapshot())
}

// SelectProfileHandler makes the profile in the path the active one.
// @Summary Select profile
// @Tags Profiles
// @Produce json
// @Param name path string true "Profile name"
// @Success 200 {object} profilesResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profiles/{name}/select [post]
func (api *API) SelectProfileHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.Profiles.SelectProfile(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeStoreError(w, "SelectProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, api.profilesSnapshot())
}
