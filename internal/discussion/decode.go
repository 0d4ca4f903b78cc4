package discussion

import (
	"encoding/json"
	"fmt"
)

// DecodeTemplate is the parse boundary for template documents: schema check,
// structural decode, load-time normalization, then structural validation.
// Nothing downstream ever sees a half-shaped template.
func DecodeTemplate(raw []byte) (*TemplateDoc, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("template is not valid JSON: %w", err)
	}
	if err := ValidateAgainstSchema(TemplateSchemaName, TemplateSchema(), parsed); err != nil {
		return nil, err
	}

	var doc TemplateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeTemplateObject decodes a template already parsed into a generic map,
// the shape the model client returns.
func DecodeTemplateObject(obj map[string]any) (*TemplateDoc, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encode template object: %w", err)
	}
	return DecodeTemplate(raw)
}

// LoadTemplate decodes a template that was already accepted and persisted.
// Schema drift in old rows degrades gracefully: the stored document is
// normalized (unknown goalRefs stripped) but not re-validated against the
// acceptance rules, so sessions bound to old versions keep working.
func LoadTemplate(raw []byte) (*TemplateDoc, error) {
	var doc TemplateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode stored template: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}
