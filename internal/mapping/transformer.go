package mapping

import (
	"sort"
	"strings"
)

// Build maps lead data into a buyer-specific payload for the given phase.
//
// Mappings run in ascending Order; mappings that do not apply to the phase
// are skipped. A required mapping whose source cannot be resolved returns a
// *MissingRequiredFieldError. Static fields merge last and are never
// overridden by mapped values.
//
// Build is pure: identical config and input always produce an identical
// output field set.
func Build(cfg Config, data map[string]interface{}, phase Phase) (map[string]interface{}, error) {
	ordered := make([]FieldMapping, len(cfg.Mappings))
	copy(ordered, cfg.Mappings)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	out := make(map[string]interface{}, len(ordered)+len(cfg.StaticFields))

	for _, m := range ordered {
		if !m.AppliesTo(phase) {
			continue
		}

		value, found := Resolve(data, m.SourceField)

		// Constant and default transforms can produce a value with no
		// source; everything else needs one
		producesOwnValue := m.Transform == TransformConstant || m.Transform == TransformDefaultValue

		if (!found || isEmpty(value)) && !producesOwnValue {
			if m.Required {
				return nil, &MissingRequiredFieldError{SourceField: m.SourceField, TargetField: m.TargetField}
			}
			continue
		}

		transformed, err := applyTransform(m.Transform, value, m.TransformArg, data)
		if err != nil {
			if m.Required {
				return nil, &MissingRequiredFieldError{SourceField: m.SourceField, TargetField: m.TargetField}
			}
			continue
		}

		if isEmpty(transformed) {
			if m.Required {
				return nil, &MissingRequiredFieldError{SourceField: m.SourceField, TargetField: m.TargetField}
			}
			continue
		}

		out[m.TargetField] = transformed
	}

	// Static fields merge last and always win
	for k, v := range cfg.StaticFields {
		out[k] = v
	}

	return out, nil
}

// Resolve looks up a dotted path ("compliance.tcpa_consent") in nested
// JSON-decoded maps. Returns the value and whether the full path existed.
func Resolve(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = data

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// RenderTemplate substitutes {{name}} placeholders in a template with values
// from scope. Unknown placeholders render empty. Used both by the template
// transform and by legacy whole-payload templates.
func RenderTemplate(tmpl string, scope map[string]interface{}) string {
	var b strings.Builder
	for {
		start := strings.Index(tmpl, "{{")
		if start < 0 {
			b.WriteString(tmpl)
			break
		}
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			b.WriteString(tmpl)
			break
		}
		end += start

		b.WriteString(tmpl[:start])
		name := strings.TrimSpace(tmpl[start+2 : end])
		if value, ok := Resolve(scope, name); ok {
			b.WriteString(asString(value))
		}
		tmpl = tmpl[end+2:]
	}
	return b.String()
}
