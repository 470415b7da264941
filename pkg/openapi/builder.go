package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Operation is a single route surfaced in the gateway's OpenAPI document.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Permissions []string // token permissions the route requires
	Signed      bool     // requires X-Signature, X-Timestamp and X-Nonce
	Admin       bool     // guarded by X-Admin-Key instead of a bearer token
	Public      bool     // no credentials at all
	RequestBody any
	Responses   map[string]any
}

// Registry holds the operations to document. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops []Operation
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(ops ...Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ops {
		op.Method = strings.ToLower(op.Method)
		r.ops = append(r.ops, op)
	}
}

// Build produces an OpenAPI 3.1 document for the registered operations.
func (r *Registry) Build(serviceName, version string) map[string]any {
	r.mu.RLock()
	ops := append([]Operation(nil), r.ops...)
	r.mu.RUnlock()
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })

	paths := map[string]any{}
	for _, op := range ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		responses := op.Responses
		if responses == nil {
			responses = map[string]any{"200": map[string]any{"description": "OK"}}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": withRejections(responses, op),
		}
		switch {
		case op.Public:
			m["security"] = []map[string]any{}
		case op.Admin:
			m["security"] = []map[string]any{{"adminKey": []string{}}}
		default:
			sec := map[string]any{"bearer": []string{}}
			if op.Signed {
				sec["signature"] = []string{}
				sec["timestamp"] = []string{}
				sec["nonce"] = []string{}
			}
			m["security"] = []map[string]any{sec}
		}
		if len(op.Permissions) > 0 {
			m["x-required-permissions"] = op.Permissions
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer":    map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"adminKey":  map[string]any{"type": "apiKey", "in": "header", "name": "X-Admin-Key"},
				"signature": map[string]any{"type": "apiKey", "in": "header", "name": "X-Signature"},
				"timestamp": map[string]any{"type": "apiKey", "in": "header", "name": "X-Timestamp"},
				"nonce":     map[string]any{"type": "apiKey", "in": "header", "name": "X-Nonce"},
			},
			"schemas": map[string]any{
				"Problem": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":       map[string]any{"type": "string"},
						"title":      map[string]any{"type": "string"},
						"errorKind":  map[string]any{"type": "string"},
						"message":    map[string]any{"type": "string"},
						"retryAfter": map[string]any{"type": "integer"},
					},
				},
			},
		},
	}
}

func withRejections(in map[string]any, op Operation) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	if op.Public {
		return out
	}
	problem := map[string]any{"application/problem+json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/Problem"}}}
	out["401"] = map[string]any{"description": "Rejected credentials", "content": problem}
	if !op.Admin {
		out["429"] = map[string]any{"description": "Rate limit exceeded", "content": problem}
		out["503"] = map[string]any{"description": "Backing store unavailable", "content": problem}
	}
	return out
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
