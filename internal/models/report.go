package models

import "encoding/json"

// Report is the result a tester submits for a completed job. Only the
// fields the system inspects are typed; Raw holds the full payload as
// submitted.
type Report struct {
	ID         string          `json:"id"`
	Tester     string          `json:"tester"`
	ScriptName string          `json:"scriptName,omitempty"`
	Creator    string          `json:"creator,omitempty"`
	OrderID    string          `json:"orderID,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// Described is the minimal shape of scripts and batches: any JSON object
// with a descriptive "what" field.
type Described struct {
	What string `json:"what"`
}
