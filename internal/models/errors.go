package models

import "errors"

// Authentication and authorization failures.
var (
	ErrNoIdentity    = errors.New("no identity")
	ErrNoSecret      = errors.New("no secret")
	ErrBadCredential = errors.New("bad credential")
	ErrMissingRole   = errors.New("missing role")
)

// Validation failures. The offending write is never performed.
var (
	ErrInvalidID           = errors.New("invalid id")
	ErrDuplicateID         = errors.New("duplicate id")
	ErrMissingField        = errors.New("missing field")
	ErrMalformedBody       = errors.New("malformed body")
	ErrMissingTester       = errors.New("missing tester")
	ErrTesterMismatch      = errors.New("tester mismatch")
	ErrMissingID           = errors.New("missing id")
	ErrUnknownResourceType = errors.New("unknown resource type")
)

// Reference failures.
var (
	ErrUnknownOrder    = errors.New("unknown order")
	ErrUnknownTester   = errors.New("unknown tester")
	ErrTesterLacksRole = errors.New("tester lacks test role")
	ErrUnknownDigester = errors.New("unknown digester")
	ErrNotFound        = errors.New("not found")
)

// ErrMissingPlaceholderValue is returned when a template names a
// placeholder the caller supplied no value for.
var ErrMissingPlaceholderValue = errors.New("missing placeholder value")

// Category groups errors by how they are surfaced to callers.
type Category string

const (
	CategoryAuth           Category = "auth"
	CategoryValidation     Category = "validation"
	CategoryReference      Category = "reference"
	CategoryInfrastructure Category = "infrastructure"
)

var categories = []struct {
	category Category
	errs     []error
}{
	{CategoryAuth, []error{ErrNoIdentity, ErrNoSecret, ErrBadCredential, ErrMissingRole}},
	{CategoryValidation, []error{
		ErrInvalidID, ErrDuplicateID, ErrMissingField, ErrMalformedBody,
		ErrMissingTester, ErrTesterMismatch, ErrMissingID, ErrUnknownResourceType,
		ErrMissingPlaceholderValue,
	}},
	{CategoryReference, []error{
		ErrUnknownOrder, ErrUnknownTester, ErrTesterLacksRole, ErrUnknownDigester, ErrNotFound,
	}},
}

// Classify returns the category of err. Anything not in the taxonomy is
// an infrastructure error.
func Classify(err error) Category {
	for _, c := range categories {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.category
			}
		}
	}
	return CategoryInfrastructure
}
