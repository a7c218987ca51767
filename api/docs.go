package api

import (
	"net/http"

	"headerswitch/logger"

	"github.com/swaggo/swag"
)

// @title headerswitch API
// @version v1.0.0
// @description Manage header profiles and inspect the installed header rules.

// @host localhost:8778
// @BasePath /api
// @schemes http

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"tags": ["Health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/profiles": {
            "get": {"tags": ["Profiles"], "summary": "List profiles", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Profiles"], "summary": "Create profile", "responses": {"201": {"description": "Created"}, "409": {"description": "Duplicate name"}}}
        },
        "/profiles/{name}": {
            "put": {"tags": ["Profiles"], "summary": "Rename profile", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "409": {"description": "Duplicate name"}}},
            "delete": {"tags": ["Profiles"], "summary": "Delete profile", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "409": {"description": "Last profile"}}}
        },
        "/profiles/{name}/select": {
            "post": {"tags": ["Profiles"], "summary": "Select profile", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/rules": {
            "get": {"tags": ["Rules"], "summary": "List rules of the active profile", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Rules"], "summary": "Add rule", "responses": {"201": {"description": "Created"}}}
        },
        "/rules/{index}": {
            "patch": {"tags": ["Rules"], "summary": "Update rule field", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad index or field"}}},
            "delete": {"tags": ["Rules"], "summary": "Delete rule", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad index"}}}
        },
        "/directives": {"get": {"tags": ["Directives"], "summary": "Installed directives", "responses": {"200": {"description": "OK"}}}},
        "/directives/compiled": {"get": {"tags": ["Directives"], "summary": "Compile active profile", "responses": {"200": {"description": "OK"}}}},
        "/live-rules": {
            "get": {"tags": ["LiveRules"], "summary": "Get live rules", "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["LiveRules"], "summary": "Replace live rules", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad payload"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "v1.0.0",
	Host:             "localhost:8778",
	BasePath:         "/api",
	Schemes:          []string{"http"},
	Title:            "headerswitch API",
	Description:      "Manage header profiles and inspect the installed header rules.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

func swaggerDocHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		logger.Error("swaggerDocHandler: reading registered doc: %v", err)
		http.Error(w, "Swagger doc unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}
