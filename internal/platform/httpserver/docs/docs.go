// Package docs registers the Swagger 2.0 document served under /swagger/.
// It is maintained by hand alongside the routes in httpserver.Server.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/drops/available": {
            "get": {
                "description": "Returns per-category counts of unallocated items and the total.",
                "produces": ["application/json"],
                "tags": ["drop-allocation-engine"],
                "summary": "List available drops",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.AvailableDropsResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/drops/claim": {
            "post": {
                "description": "Runs the drop workflow for the requester and returns the outcome with the available pool.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["drop-allocation-engine"],
                "summary": "Request today's drop",
                "parameters": [
                    {"type": "string", "description": "Requester id", "name": "X-Requester-Id", "in": "header", "required": true},
                    {"description": "Requester profile", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.ClaimDropRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.DropResultResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.DropResultResponse"}}
                }
            }
        },
        "/v1/drops/requesters/{requester_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["drop-allocation-engine"],
                "summary": "Get requester ledger row",
                "parameters": [
                    {"type": "string", "description": "Requester id", "name": "requester_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.RequesterResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/drops/requesters/{requester_id}/allocations": {
            "get": {
                "description": "Returns allocation audit events for the requester, newest first.",
                "produces": ["application/json"],
                "tags": ["drop-allocation-engine"],
                "summary": "List a requester's allocations",
                "parameters": [
                    {"type": "string", "description": "Requester id", "name": "requester_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.ListAllocationsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/gateway/commands": {
            "post": {
                "description": "Accepts a chat message and returns the Markdown reply. /start and /claim run the drop workflow.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["drop-allocation-engine"],
                "summary": "Handle a chat command",
                "parameters": [
                    {"description": "Chat message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.GatewayCommandRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.GatewayCommandResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httptransport.GatewayCommandResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.AllocationDTO": {
            "type": "object",
            "properties": {
                "action": {"type": "string"},
                "allocation_day": {"type": "string"},
                "allocation_event_id": {"type": "string"},
                "item_id": {"type": "string"},
                "occurred_at": {"type": "string"}
            }
        },
        "httptransport.AvailableDropsResponse": {
            "type": "object",
            "properties": {
                "available": {"$ref": "#/definitions/httptransport.AvailableSummaryDTO"}
            }
        },
        "httptransport.AvailableSummaryDTO": {
            "type": "object",
            "properties": {
                "categories": {"type": "array", "items": {"$ref": "#/definitions/httptransport.CategoryCountDTO"}},
                "total": {"type": "integer"}
            }
        },
        "httptransport.CategoryCountDTO": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "httptransport.ClaimDropRequest": {
            "type": "object",
            "properties": {
                "display_name": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "httptransport.DropResultResponse": {
            "type": "object",
            "properties": {
                "allocation_day": {"type": "string"},
                "allocation_event_id": {"type": "string"},
                "available": {"$ref": "#/definitions/httptransport.AvailableSummaryDTO"},
                "category": {"type": "string"},
                "fields": {"type": "array", "items": {"$ref": "#/definitions/httptransport.PayloadFieldDTO"}},
                "item_id": {"type": "string"},
                "outcome": {"type": "string"}
            }
        },
        "httptransport.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "httptransport.GatewayCommandRequest": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "requester_id": {"type": "string"},
                "text": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "httptransport.GatewayCommandResponse": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string"},
                "parse_mode": {"type": "string"},
                "reply": {"type": "string"}
            }
        },
        "httptransport.ListAllocationsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/httptransport.AllocationDTO"}},
                "requester_id": {"type": "string"}
            }
        },
        "httptransport.PayloadFieldDTO": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "value": {"type": "string"}
            }
        },
        "httptransport.RequesterResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "display_name": {"type": "string"},
                "last_seen_at": {"type": "string"},
                "requester_id": {"type": "string"},
                "total_allocations": {"type": "integer"},
                "username": {"type": "string"},
                "verified": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "dropvault API",
	Description:      "Daily drop allocation for verified requesters.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
