// Package docs registers the OpenAPI description served under /docs.
package docs

import "github.com/swaggo/swag"

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
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/whatsapp/initialize": {"post": {"summary": "Start a session and wait for QR or connection", "security": [{"BearerAuth": []}]}},
        "/whatsapp/disconnect": {"post": {"summary": "Log out and purge a session", "security": [{"BearerAuth": []}]}},
        "/whatsapp/send": {"post": {"summary": "Send a text message", "security": [{"BearerAuth": []}]}},
        "/whatsapp/sessions": {"get": {"summary": "List sessions", "security": [{"BearerAuth": []}]}},
        "/whatsapp/qr/{sessionId}": {"get": {"summary": "Pending QR code as a PNG data URL"}},
        "/whatsapp/status/{sessionId}": {"get": {"summary": "Session status"}},
        "/auto-reply/enable": {"post": {"summary": "Bind an event and agent to a session", "security": [{"BearerAuth": []}]}},
        "/auto-reply/disable": {"post": {"summary": "Remove the auto-reply binding", "security": [{"BearerAuth": []}]}},
        "/auto-reply/status/{sessionId}": {"get": {"summary": "Auto-reply binding of a session", "security": [{"BearerAuth": []}]}},
        "/background-sender/start": {"post": {"summary": "Start or queue a bulk send job", "security": [{"BearerAuth": []}]}},
        "/background-sender/stop/{numberId}": {"post": {"summary": "Stop a job", "security": [{"BearerAuth": []}]}},
        "/background-sender/reset/{numberId}": {"post": {"summary": "Stop a job and clear its progress", "security": [{"BearerAuth": []}]}},
        "/background-sender/status/{numberId}": {"get": {"summary": "Job progress", "security": [{"BearerAuth": []}]}}
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "WhatsApp Sender API",
	Description:      "Session management, auto replies and background bulk sending over WhatsApp.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
