package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Therapy Booking API",
        "description": "Session booking, availability and credit ledger for therapy sessions.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": ["http", "https"],
    "securityDefinitions": {"BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}},
    "tags": [
        {"name": "Sessions", "description": "Booking and session lifecycle"},
        {"name": "Availability", "description": "Computed therapist availability"},
        {"name": "Schedules", "description": "Weekly rules and date overrides"},
        {"name": "Credits", "description": "Session credit ledger"},
        {"name": "Exports", "description": "Agenda exports"},
        {"name": "Ops", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {"get": {"summary": "Health check", "tags": ["Ops"], "responses": {"200": {"description": "OK"}}}},
        "/ready": {"get": {"summary": "Readiness of postgres and redis", "tags": ["Ops"], "responses": {"200": {"description": "Ready"}, "503": {"description": "Degraded"}}}},
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "tags": ["Ops"],
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/therapists/{id}/availability": {
            "get": {
                "summary": "Therapist availability for a date",
                "tags": ["Availability"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Therapist ID"
                    },
                    {
                        "name": "date",
                        "in": "query",
                        "required": true,
                        "type": "string",
                        "description": "YYYY-MM-DD in the therapist's timezone"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions": {
            "get": {
                "summary": "List the caller's sessions",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "status", "in": "query", "required": false, "type": "string", "description": ""},
                    {
                        "name": "from",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    },
                    {"name": "page", "in": "query", "required": false, "type": "integer", "description": ""},
                    {
                        "name": "page_size",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": ""
                    }
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "summary": "Book a session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "consumes": ["application/json"],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/BookSessionRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "402": {
                        "description": "Insufficient credits",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Booking conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}": {
            "get": {
                "summary": "Get a session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}/approve": {
            "post": {
                "summary": "Approve a pending session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {
                        "description": "Invalid lifecycle transition",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}/join": {
            "post": {
                "summary": "Join a session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "402": {
                        "description": "Insufficient credits",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {
                        "description": "Invalid lifecycle transition",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}/complete": {
            "post": {
                "summary": "Complete an in-progress session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {
                        "description": "Invalid lifecycle transition",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}/cancel": {
            "post": {
                "summary": "Cancel a session",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/SessionActionRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {
                        "description": "Invalid lifecycle transition",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/sessions/{id}/no-show": {
            "post": {
                "summary": "Mark a session as no-show",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/SessionActionRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {
                        "description": "Invalid lifecycle transition",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/sessions": {
            "get": {
                "summary": "List the therapist's agenda",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "status", "in": "query", "required": false, "type": "string", "description": ""},
                    {"name": "page", "in": "query", "required": false, "type": "integer", "description": ""},
                    {
                        "name": "page_size",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": ""
                    }
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "summary": "Create a follow-up session for a client",
                "tags": ["Sessions"],
                "produces": ["application/json"],
                "consumes": ["application/json"],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreateDeferredSessionRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Booking conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {
                        "description": "Transient storage failure, retry",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/sessions/export": {
            "get": {
                "summary": "Export the therapist agenda",
                "tags": ["Exports"],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string", "description": ""},
                    {"name": "to", "in": "query", "required": true, "type": "string", "description": ""},
                    {
                        "name": "format",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "csv or pdf"
                    }
                ],
                "responses": {"200": {"description": "File"}},
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/schedule-rules": {
            "get": {
                "summary": "List weekly schedule rules",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "summary": "Create a weekly schedule rule",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "consumes": ["application/json"],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ScheduleRuleRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/schedule-rules/{id}": {
            "put": {
                "summary": "Replace a weekly schedule rule",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string", "description": "Rule ID"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ScheduleRuleRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "delete": {
                "summary": "Delete a weekly schedule rule",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string", "description": "Rule ID"}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/overrides": {
            "get": {
                "summary": "List date overrides",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string", "description": ""},
                    {"name": "to", "in": "query", "required": true, "type": "string", "description": ""}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            },
            "put": {
                "summary": "Create or replace the override for a date",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "consumes": ["application/json"],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/AvailabilityOverrideRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/therapists/me/overrides/{date}": {
            "delete": {
                "summary": "Remove the override for a date",
                "tags": ["Schedules"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "name": "date",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "YYYY-MM-DD"
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/credits": {
            "get": {
                "summary": "List credit grants and spendable balance",
                "tags": ["Credits"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/credits/usage": {
            "get": {
                "summary": "List sessions holding the caller's credits",
                "tags": ["Credits"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            }
        }
    },
    "definitions": {
        "BookSessionRequest": {
            "type": "object",
            "properties": {
                "therapist_id": {"type": "string"},
                "date": {"type": "string"},
                "start_time": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "session_type": {"type": "string", "enum": ["video", "audio", "chat"]},
                "notes": {"type": "string"}
            },
            "required": ["therapist_id", "date", "start_time", "duration_minutes", "session_type"]
        },
        "CreateDeferredSessionRequest": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string"},
                "date": {"type": "string"},
                "start_time": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "session_type": {"type": "string", "enum": ["video", "audio", "chat"]},
                "notes": {"type": "string"},
                "requires_approval": {"type": "boolean"}
            },
            "required": ["client_id", "date", "start_time", "duration_minutes", "session_type"]
        },
        "SessionActionRequest": {"type": "object", "properties": {"reason": {"type": "string"}}},
        "ScheduleRuleRequest": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "session_duration_minutes": {"type": "integer"},
                "session_type": {"type": "string"},
                "max_sessions": {"type": "integer"},
                "is_active": {"type": "boolean"}
            },
            "required": ["day_of_week", "start_time", "end_time", "session_duration_minutes"]
        },
        "AvailabilityOverrideRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "is_available": {"type": "boolean"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "session_duration_minutes": {"type": "integer"},
                "session_type": {"type": "string"},
                "max_sessions": {"type": "integer"},
                "reason": {"type": "string"}
            },
            "required": ["date", "is_available"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
