package types

import (
	"encoding/base64"
	"encoding/json"
)

// ImagePayload is the uniform image handed to an engine.
// Built once per request and never mutated afterwards.
type ImagePayload struct {
	Bytes     []byte
	MediaType string
}

// Base64 returns the payload in standard base64, the form every provider expects.
func (p ImagePayload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Bytes)
}

// DataURL renders the payload as data:<mime>;base64,<data>.
func (p ImagePayload) DataURL() string {
	return "data:" + p.MediaType + ";base64," + p.Base64()
}

// Medication is one row of the medication list as extracted by the model.
type Medication struct {
	MedicationName string `json:"medication_name" validate:"required"` // name incl. strength and form
	Frequency      string `json:"frequency"`                           // "daily", "every 8 hours", ...
	Instructions   string `json:"instructions"`                        // full SIG
	IsPRN          bool   `json:"is_prn"`                              // "as needed"
	Indication     string `json:"indication"`                          // "" when not listed
}

// MedicationList is the only output contract of the service.
// Order follows the model's emission order.
type MedicationList struct {
	Medications []Medication `json:"medications" validate:"required,dive"`
}

// MarshalJSON keeps "medications" an array even for a nil slice.
func (l MedicationList) MarshalJSON() ([]byte, error) {
	type alias MedicationList
	if l.Medications == nil {
		l.Medications = []Medication{}
	}
	return json.Marshal(alias(l))
}
