package httputil

import (
	"encoding/json"
)

// OptionalString is a PATCH field that can be absent, null or a string.
// A plain *string cannot tell absent from null.
type OptionalString struct {
	Present bool
	Value   *string
}

// UnmarshalJSON only runs for keys present in the document
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	o.Value = nil

	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = s
	return nil
}

// Target returns the referenced id, folding null and "" into nil.
// Only meaningful when Present.
func (o OptionalString) Target() *string {
	if o.Value == nil || *o.Value == "" {
		return nil
	}
	return o.Value
}
