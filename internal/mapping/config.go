// Package mapping implements the data-driven payload transformation pipeline
// that turns internal lead data into buyer-specific request bodies. Buyer
// request shape is entirely configuration: an ordered list of field mappings
// plus static fields, with a small registry of named pure transforms.
package mapping

import "fmt"

// Phase selects which mappings apply when building a payload
type Phase string

const (
	// PhasePing is the price-discovery request
	PhasePing Phase = "PING"
	// PhasePost is the delivery request to the winning buyer
	PhasePost Phase = "POST"
)

// FieldMapping describes how one internal lead field translates into a
// buyer's expected request field
type FieldMapping struct {
	Order         int    `json:"order"`
	SourceField   string `json:"source_field"`
	TargetField   string `json:"target_field"`
	Required      bool   `json:"required"`
	Transform     string `json:"transform,omitempty"`
	TransformArg  string `json:"transform_arg,omitempty"`
	IncludeInPing bool   `json:"include_in_ping"`
	IncludeInPost bool   `json:"include_in_post"`
}

// AppliesTo reports whether the mapping participates in the given phase
func (m FieldMapping) AppliesTo(phase Phase) bool {
	switch phase {
	case PhasePing:
		return m.IncludeInPing
	case PhasePost:
		return m.IncludeInPost
	}
	return false
}

// Config is the per-(buyer, service type) field mapping configuration
type Config struct {
	Mappings []FieldMapping `json:"mappings"`
	// StaticFields are constants merged into every payload after the
	// mapped fields; they always win on key collisions
	StaticFields map[string]interface{} `json:"static_fields,omitempty"`
}

// Validate checks a config for problems that would make every auction fail
func (c *Config) Validate() error {
	for i, m := range c.Mappings {
		if m.TargetField == "" {
			return fmt.Errorf("mapping[%d]: target field is required", i)
		}
		if m.SourceField == "" && m.Transform != TransformConstant {
			return fmt.Errorf("mapping[%d] (%s): source field is required for non-constant mappings", i, m.TargetField)
		}
		if m.Transform != "" {
			if _, ok := transforms[m.Transform]; !ok {
				return fmt.Errorf("mapping[%d] (%s): unknown transform %q", i, m.TargetField, m.Transform)
			}
		}
	}
	return nil
}

// ResponseMapping is the symmetric configuration for reading a buyer's
// heterogeneous response body: where the bid lives in a PING response, and
// where the accept/reject signal lives in a POST response. Paths are dotted
// JSON paths ("result.bid_amount").
type ResponseMapping struct {
	// BidField locates the numeric bid in a PING response
	BidField string `json:"bid_field"`
	// StatusField locates the accept/reject signal in a POST response
	StatusField string `json:"status_field"`
	// AcceptValues are the status values that count as accepted
	AcceptValues []string `json:"accept_values,omitempty"`
	// ErrorField locates optional error detail in a POST rejection
	ErrorField string `json:"error_field,omitempty"`
}

// MissingRequiredFieldError reports that a required mapping could not be
// resolved from the lead. It fails only the buyer whose config it belongs
// to, never the whole auction.
type MissingRequiredFieldError struct {
	SourceField string
	TargetField string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s (target %s)", e.SourceField, e.TargetField)
}
