package models

import "fmt"

// ResourceType names a collection in the resource store.
type ResourceType string

const (
	TypeScript ResourceType = "script"
	TypeBatch  ResourceType = "batch"
	TypeOrder  ResourceType = "order"
	TypeJob    ResourceType = "job"
	TypeReport ResourceType = "report"
	TypeDigest ResourceType = "digest"
	TypeUser   ResourceType = "user"
)

// AllTypes lists every resource type in store order.
var AllTypes = []ResourceType{
	TypeScript, TypeBatch, TypeOrder, TypeJob, TypeReport, TypeDigest, TypeUser,
}

// typeDirs maps each type to its directory under the data root.
var typeDirs = map[ResourceType]string{
	TypeScript: "scripts",
	TypeBatch:  "batches",
	TypeOrder:  "orders",
	TypeJob:    "jobs",
	TypeReport: "reports",
	TypeDigest: "digests",
	TypeUser:   "users",
}

// Dir returns the directory name holding resources of this type.
func (t ResourceType) Dir() string {
	return typeDirs[t]
}

// Ext returns the file extension of stored instances, including the dot.
func (t ResourceType) Ext() string {
	if t == TypeDigest {
		return ".html"
	}
	return ".json"
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	_, ok := typeDirs[t]
	return ok
}

// ParseResourceType accepts a type either in singular form or as its
// directory name ("script" or "scripts").
func ParseResourceType(s string) (ResourceType, error) {
	if t := ResourceType(s); t.Valid() {
		return t, nil
	}
	for t, dir := range typeDirs {
		if dir == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResourceType, s)
}

// Operation is an action a caller requests on a resource type.
type Operation string

const (
	OpSee    Operation = "see"
	OpCreate Operation = "create"
	OpRemove Operation = "remove"
)

// Entry is one row of a resource listing.
type Entry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}
