package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Halaqa API",
        "description": "Join requests, eligibility and enrollments for Quran study circles",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login and current user"},
        {"name": "JoinRequests", "description": "Join request workflow"},
        {"name": "Enrollments", "description": "Halaqa membership"},
        {"name": "Halaqas", "description": "Halaqa directory and rosters"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Account inactive", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/join-requests": {
            "get": {
                "tags": ["JoinRequests"],
                "summary": "List join requests visible to the caller",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "status", "type": "string", "description": "Comma separated statuses"},
                    {"in": "query", "name": "type", "type": "string", "enum": ["SPECIFIC_HALAQA", "SPECIFIC_TEACHER", "ANY_TEACHER"]},
                    {"in": "query", "name": "role", "type": "string", "description": "View as role (admin only)"},
                    {"in": "query", "name": "userId", "type": "string", "description": "View as user (admin only)"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["JoinRequests"],
                "summary": "Submit a join request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateJoinRequestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/join-requests/{id}": {
            "get": {
                "tags": ["JoinRequests"],
                "summary": "Get a join request",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["JoinRequests"],
                "summary": "Reject or reassign a join request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RespondJoinRequestRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["JoinRequests"],
                "summary": "Cancel a pending request (student) or delete one (admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Removed"},
                    "409": {"description": "No longer pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/join-requests/{id}/approve": {
            "post": {
                "tags": ["JoinRequests"],
                "summary": "Approve a join request and enroll the student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ApproveJoinRequestRequest"}}
                ],
                "responses": {
                    "200": {"description": "Approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the addressed reviewer", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already processed, duplicate or full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/join-requests/{id}/eligibility": {
            "get": {
                "tags": ["JoinRequests"],
                "summary": "Preview whether a join request can be approved",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "halaqaId", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "studentId", "type": "string"},
                    {"in": "query", "name": "halaqaId", "type": "string"},
                    {"in": "query", "name": "status", "type": "string", "enum": ["ACTIVE", "LEFT", "REMOVED"]},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Join a GENERAL halaqa directly",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SelfEnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate or full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Halaqa is private", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "End an active enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/halaqas": {
            "get": {
                "tags": ["Halaqas"],
                "summary": "List halaqas",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "academyId", "type": "string"},
                    {"in": "query", "name": "teacherId", "type": "string"},
                    {"in": "query", "name": "type", "type": "string", "enum": ["GENERAL", "PRIVATE"]},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/halaqas/{id}": {
            "get": {
                "tags": ["Halaqas"],
                "summary": "Get a halaqa",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/halaqas/{id}/roster": {
            "get": {
                "tags": ["Halaqas"],
                "summary": "Active roster of a halaqa",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json", "text/csv", "application/pdf"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["json", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Roster"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateJoinRequestRequest": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "studentId": {"type": "string"},
                "type": {"type": "string", "enum": ["SPECIFIC_HALAQA", "SPECIFIC_TEACHER", "ANY_TEACHER"]},
                "halaqaId": {"type": "string"},
                "teacherId": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "ApproveJoinRequestRequest": {
            "type": "object",
            "required": ["halaqaId"],
            "properties": {
                "halaqaId": {"type": "string"}
            }
        },
        "RespondJoinRequestRequest": {
            "type": "object",
            "required": ["status", "response"],
            "properties": {
                "status": {"type": "string", "enum": ["REJECTED", "REASSIGNED"]},
                "response": {"type": "string"}
            }
        },
        "SelfEnrollRequest": {
            "type": "object",
            "required": ["halaqaId"],
            "properties": {
                "halaqaId": {"type": "string"},
                "studentId": {"type": "string"}
            }
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
                "status": {"type": "integer"}
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
