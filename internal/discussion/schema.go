package discussion

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	TemplateSchemaName   = "discussion_template"
	EvaluationSchemaName = "step_evaluation"
)

// TemplateSchema is the JSON schema the synthesizer both sends to the model
// (structured outputs) and validates the model's reply against before any
// downstream component sees the document.
func TemplateSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	rubric := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"successSummary", "checklist", "failureSignals"},
		"properties": map[string]any{
			"successSummary": map[string]any{"type": "string"},
			"checklist":      stringArray,
			"failureSignals": stringArray,
		},
	}
	goal := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"id", "description", "rubric"},
		"properties": map[string]any{
			"id":          map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"rubric":      rubric,
		},
	}
	feedback := map[string]any{
		"anyOf": []any{
			map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"correct", "incorrect"},
				"properties": map[string]any{
					"correct":   map[string]any{"type": "string"},
					"incorrect": map[string]any{"type": "string"},
				},
			},
			map[string]any{"type": "null"},
		},
	}
	step := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"key", "prompt", "expectedType", "options", "answer", "feedback", "goalRefs"},
		"properties": map[string]any{
			"key":          map[string]any{"type": "string"},
			"prompt":       map[string]any{"type": "string"},
			"expectedType": map[string]any{"type": "string", "enum": []any{ExpectedOpen, ExpectedMCQ, ExpectedScale, ExpectedReflection}},
			"options":      stringArray,
			"answer": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "integer"},
					map[string]any{"type": "null"},
				},
			},
			"feedback": feedback,
			"goalRefs": stringArray,
		},
	}
	phase := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"id", "steps"},
		"properties": map[string]any{
			"id":    map[string]any{"type": "string", "enum": []any{PhaseDiagnosis, PhaseExploration, PhasePractice, PhaseSynthesis}},
			"steps": map[string]any{"type": "array", "minItems": 1, "items": step},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"phases", "learningGoals", "closingMessage"},
		"properties": map[string]any{
			"phases":         map[string]any{"type": "array", "minItems": 1, "items": phase},
			"learningGoals":  map[string]any{"type": "array", "minItems": 1, "items": goal},
			"closingMessage": map[string]any{"type": "string"},
		},
	}
}

// EvaluationSchema shapes the model's per-goal judgement of an open response.
func EvaluationSchema() map[string]any {
	assessment := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"goalId", "satisfied", "notes"},
		"properties": map[string]any{
			"goalId":    map[string]any{"type": "string"},
			"satisfied": map[string]any{"type": "boolean"},
			"notes":     map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"assessments", "coachFeedback"},
		"properties": map[string]any{
			"assessments":   map[string]any{"type": "array", "items": assessment},
			"coachFeedback": map[string]any{"type": "string"},
		},
	}
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// ValidateAgainstSchema checks a decoded JSON value against a named schema,
// compiling and caching the schema on first use.
func ValidateAgainstSchema(name string, definition map[string]any, value any) error {
	compiled, err := compiledSchema(name, definition)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", name, err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("schema %q: %w", name, err)
	}
	return nil
}

func compiledSchema(name string, definition map[string]any) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The jsonschema library expects a parsed JSON value (any), not raw
	// bytes. Round-trip through encoding/json to get one.
	defBytes, err := json.Marshal(definition)
	if err != nil {
		return nil, err
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, err
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}
