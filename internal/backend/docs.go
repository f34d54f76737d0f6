// @title FastScan API
// @version 2.0
// @description Website scanning, child-safety classification and visitor ratings.
// @BasePath /
package backend

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
    "paths": {
        "/api/health": {
            "get": { "summary": "Liveness probe", "responses": { "200": { "description": "OK" } } }
        },
        "/api/scan": {
            "post": {
                "summary": "Scan a website",
                "parameters": [
                    { "in": "body", "name": "body", "required": true, "schema": { "$ref": "#/definitions/ScanRequest" } }
                ],
                "responses": {
                    "200": { "description": "OK", "schema": { "$ref": "#/definitions/ScanResult" } },
                    "400": { "description": "Invalid URL", "schema": { "$ref": "#/definitions/ErrorResponse" } },
                    "429": { "description": "Too many scans", "schema": { "$ref": "#/definitions/ErrorResponse" } }
                }
            }
        },
        "/api/check-content-safety": {
            "post": {
                "summary": "Check a website for adult content before scanning",
                "parameters": [
                    { "in": "body", "name": "body", "required": true, "schema": { "$ref": "#/definitions/ScanRequest" } }
                ],
                "responses": { "200": { "description": "OK", "schema": { "$ref": "#/definitions/ContentSafetyVerdict" } } }
            }
        },
        "/api/recent-scans": {
            "get": {
                "summary": "Most recent scans",
                "parameters": [ { "in": "query", "name": "limit", "type": "integer" } ],
                "responses": { "200": { "description": "OK" } }
            }
        },
        "/api/recent-feedback": {
            "get": {
                "summary": "Most recent ratings",
                "parameters": [ { "in": "query", "name": "limit", "type": "integer" } ],
                "responses": { "200": { "description": "OK" } }
            }
        },
        "/api/stats": {
            "get": { "summary": "Aggregate counters", "responses": { "200": { "description": "OK" } } }
        },
        "/api/captcha": {
            "get": { "summary": "Issue a single-use captcha", "responses": { "200": { "description": "OK" } } }
        },
        "/api/rate": {
            "post": {
                "summary": "Rate a scan",
                "responses": {
                    "200": { "description": "Accepted" },
                    "400": { "description": "Rejected" },
                    "403": { "description": "PIN required" },
                    "423": { "description": "Visitor locked" }
                }
            }
        },
        "/api/check-rating-status": {
            "get": {
                "summary": "Whether a visitor may rate",
                "parameters": [ { "in": "query", "name": "visitor_id", "type": "string", "required": true } ],
                "responses": { "200": { "description": "OK" } }
            }
        },
        "/api/verify-pin": {
            "post": {
                "summary": "Verify a visitor PIN",
                "responses": {
                    "200": { "description": "Verified" },
                    "401": { "description": "Wrong PIN" },
                    "423": { "description": "Visitor locked" }
                }
            }
        },
        "/api/websites/search": {
            "get": {
                "summary": "Search scanned websites",
                "parameters": [
                    { "in": "query", "name": "q", "type": "string" },
                    { "in": "query", "name": "page", "type": "integer" },
                    { "in": "query", "name": "per_page", "type": "integer" },
                    { "in": "query", "name": "filter", "type": "string", "enum": ["all", "safe", "unsafe"] },
                    { "in": "query", "name": "sort", "type": "string", "enum": ["recent", "score", "name"] }
                ],
                "responses": { "200": { "description": "OK" } }
            }
        },
        "/api/websites/scan-new": {
            "post": {
                "summary": "Scan a domain unless it is already known",
                "parameters": [
                    { "in": "body", "name": "body", "required": true, "schema": { "$ref": "#/definitions/ScanRequest" } }
                ],
                "responses": { "200": { "description": "OK" } }
            }
        }
    },
    "definitions": {
        "ScanRequest": {
            "type": "object",
            "properties": { "url": { "type": "string", "example": "example.com" } }
        },
        "ScanResult": {
            "type": "object",
            "properties": {
                "id": { "type": "string" },
                "url": { "type": "string" },
                "grade": { "type": "string" },
                "performance_score": { "type": "number" },
                "load_time_ms": { "type": "number" },
                "content_length": { "type": "integer" },
                "status": { "type": "integer" },
                "is_safe": { "type": "boolean" },
                "safety_status": { "type": "string" },
                "safety_reasons": { "type": "array", "items": { "type": "string" } },
                "bugs": { "type": "array", "items": { "type": "string" } }
            }
        },
        "ContentSafetyVerdict": {
            "type": "object",
            "properties": {
                "warning": { "type": "boolean" },
                "is_adult_content": { "type": "boolean" },
                "url": { "type": "string" },
                "reasons": { "type": "array", "items": { "type": "string" } },
                "message": { "type": "string" }
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": { "error": { "type": "string", "example": "not found" } }
        }
    }
}`

// SwaggerInfo holds the exported API metadata.
var SwaggerInfo = &swag.Spec{
	Version:          "2.0",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "FastScan API",
	Description:      "Website scanning, child-safety classification and visitor ratings.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
