package models

import (
	"encoding/json"
	"time"
)

// Order is a pending request to run a script, optionally against a batch.
type Order struct {
	ID            string          `json:"id"`
	Creator       string          `json:"creator"`
	CreationTime  time.Time       `json:"creationTime"`
	ScriptName    string          `json:"scriptName"`
	ScriptIsValid bool            `json:"scriptIsValid"`
	Script        json.RawMessage `json:"script,omitempty"`
	BatchName     string          `json:"batchName,omitempty"`
	BatchIsValid  bool            `json:"batchIsValid,omitempty"`
	Batch         json.RawMessage `json:"batch,omitempty"`
}

// OrderRequest is the body a caller submits to create an order.
type OrderRequest struct {
	ScriptName string `json:"scriptName"`
	BatchName  string `json:"batchName,omitempty"`
}

// Job is an order assigned to a tester. Log and Reports are filled by the
// test-execution engine.
type Job struct {
	Order
	Assigner     string            `json:"assigner"`
	AssignedTime time.Time         `json:"assignedTime"`
	Tester       string            `json:"tester"`
	Log          []json.RawMessage `json:"log"`
	Reports      []json.RawMessage `json:"reports"`
}

// NewJob converts an order into a job with empty accumulators.
func NewJob(order Order, assigner, tester string, at time.Time) Job {
	return Job{
		Order:        order,
		Assigner:     assigner,
		AssignedTime: at,
		Tester:       tester,
		Log:          []json.RawMessage{},
		Reports:      []json.RawMessage{},
	}
}

// OrderRecord is the state of one lifecycle identifier: either a pending
// order or the job it became.
type OrderRecord interface {
	RecordID() string
	isOrderRecord()
}

// Pending is an order not yet assigned.
type Pending struct {
	Order Order
}

// Assigned is an order that became a job.
type Assigned struct {
	Job Job
}

func (p Pending) RecordID() string  { return p.Order.ID }
func (a Assigned) RecordID() string { return a.Job.ID }

func (Pending) isOrderRecord()  {}
func (Assigned) isOrderRecord() {}
