// Package docs registers the speechviz OpenAPI document with swag.
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
        "/api/speech": {
            "post": {
                "description": "Synthesizes the text and returns base64 WAV audio with timing, or an error message.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["speech"],
                "summary": "Generate speech",
                "parameters": [
                    {"description": "Text to speak", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.TextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/tts.SpeechResponse"}},
                    "400": {"description": "Missing text", "schema": {"$ref": "#/definitions/tts.SpeechResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Provider or configuration error", "schema": {"$ref": "#/definitions/tts.SpeechResponse"}}
                }
            }
        },
        "/api/studio/generate": {
            "post": {
                "description": "Synthesizes the text, loads it into the studio's media element and notifies the visualizer.\nThe returned audioUrl is a transient URL released on the next generation.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["studio"],
                "summary": "Regenerate studio audio",
                "parameters": [
                    {"description": "Text to speak", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.TextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/studio.Result"}},
                    "400": {"description": "Missing text", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Superseded by a newer generation", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Provider, decode or configuration error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/api/studio/play": {
            "post": {
                "produces": ["application/json"],
                "tags": ["studio"],
                "summary": "Play studio audio",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StateResponse"}},
                    "409": {"description": "Nothing generated yet", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/api/studio/pause": {
            "post": {
                "produces": ["application/json"],
                "tags": ["studio"],
                "summary": "Pause studio audio",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StateResponse"}}
                }
            }
        },
        "/api/studio/samples": {
            "get": {
                "produces": ["application/json"],
                "tags": ["studio"],
                "summary": "Sample texts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SamplesResponse"}}
                }
            }
        },
        "/api/transcribe": {
            "post": {
                "description": "Uploads the file to the transcription provider and waits for the transcript (up to five minutes).",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["transcription"],
                "summary": "Transcribe audio",
                "parameters": [
                    {"type": "file", "description": "Audio file, at most 25MB", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.TranscriptResponse"}},
                    "400": {"description": "No file or file too large", "schema": {"$ref": "#/definitions/http.TranscriptResponse"}},
                    "429": {"description": "Rate limited or another job in progress", "schema": {"$ref": "#/definitions/http.TranscriptResponse"}},
                    "500": {"description": "Provider or configuration error", "schema": {"$ref": "#/definitions/http.TranscriptResponse"}}
                }
            }
        },
        "/api/visualizer/snapshot": {
            "get": {
                "description": "Bar heights of the last frame (0..1) while playing, or the placeholder bars while idle.",
                "produces": ["application/json"],
                "tags": ["visualizer"],
                "summary": "Visualizer snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/visualizer.Snapshot"}}
                }
            }
        },
        "/api/visualizer/frame.png": {
            "get": {
                "produces": ["image/png"],
                "tags": ["visualizer"],
                "summary": "Visualizer frame",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}}
                }
            }
        },
        "/api/visualizer/ws": {
            "get": {
                "description": "WebSocket. Server sends visualizer.Snapshot JSON messages; the client may send {\"width\",\"height\"}.",
                "tags": ["visualizer"],
                "summary": "Visualizer stream",
                "responses": {
                    "101": {"description": "Switching Protocols", "schema": {"type": "string"}}
                }
            }
        },
        "/media/{id}": {
            "get": {
                "produces": ["audio/wav"],
                "tags": ["media"],
                "summary": "Transient audio",
                "parameters": [
                    {"type": "string", "description": "Blob id", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "Serve as an attachment", "name": "download", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Released or unknown", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "http.SamplesResponse": {
            "type": "object",
            "properties": {"samples": {"type": "array", "items": {"type": "string"}}}
        },
        "http.StateResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}}
        },
        "http.TextRequest": {
            "type": "object",
            "properties": {"text": {"type": "string", "example": "Hello world"}}
        },
        "http.TranscriptResponse": {
            "type": "object",
            "properties": {
                "error": {"description": "Error is set instead of Text on failure.", "type": "string"},
                "text": {"type": "string"}
            }
        },
        "studio.Result": {
            "type": "object",
            "properties": {
                "audioUrl": {"type": "string"},
                "native": {"type": "boolean"},
                "timing": {"$ref": "#/definitions/tts.Timing"}
            }
        },
        "tts.SpeechResponse": {
            "type": "object",
            "properties": {
                "audioBase64": {"type": "string"},
                "error": {"type": "string"},
                "timing": {"$ref": "#/definitions/tts.Timing"}
            }
        },
        "tts.Timing": {
            "type": "object",
            "properties": {
                "elapsedSeconds": {"type": "number"},
                "inputLength": {"type": "integer"}
            }
        },
        "visualizer.Snapshot": {
            "type": "object",
            "properties": {
                "bars": {"type": "array", "items": {"type": "number"}},
                "frames": {"type": "integer"},
                "height": {"type": "integer"},
                "placeholder": {"type": "boolean"},
                "playing": {"type": "boolean"},
                "state": {"type": "string"},
                "width": {"type": "integer"}
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
	Title:            "speechviz API",
	Description:      "Text-to-speech studio with a live audio visualizer and file transcription.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
