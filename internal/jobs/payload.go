// Package jobs contains the reconcile job: its payload, its handler, and the
// Service facade through which callers submit jobs and read their outcome.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ResultName is the base name of every job's result artifact.
const ResultName = "usos_sin_servicios"

// ReconcilePayload is the queue payload of a reconcile job. Paths point at
// staged inputs the worker can read.
type ReconcilePayload struct {
	ServicesPath string `json:"services_path"`
	UsagesPath   string `json:"usages_path"`

	// Original upload names, for logs and history only
	ServicesName string `json:"services_name,omitempty"`
	UsagesName   string `json:"usages_name,omitempty"`
}

// Map converts the payload to the generic job payload.
func (p ReconcilePayload) Map() map[string]any {
	m := map[string]any{
		"services_path": p.ServicesPath,
		"usages_path":   p.UsagesPath,
	}
	if p.ServicesName != "" {
		m["services_name"] = p.ServicesName
	}
	if p.UsagesName != "" {
		m["usages_name"] = p.UsagesName
	}
	return m
}

// ParsePayload decodes and validates a generic job payload.
func ParsePayload(data map[string]any) (ReconcilePayload, error) {
	// Convert map to JSON then unmarshal to struct
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ReconcilePayload{}, err
	}

	var payload ReconcilePayload
	if err := json.Unmarshal(jsonBytes, &payload); err != nil {
		return ReconcilePayload{}, fmt.Errorf("invalid payload: %w", err)
	}

	if payload.ServicesPath == "" {
		return payload, errors.New("services_path is required")
	}
	if payload.UsagesPath == "" {
		return payload, errors.New("usages_path is required")
	}
	return payload, nil
}
