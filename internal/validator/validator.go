package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// MaxIDLength bounds caller-supplied identifiers.
const MaxIDLength = 64

var (
	idPattern       = regexp.MustCompile(`^[a-z0-9]+$`)
	digestIDPattern = regexp.MustCompile(`^([a-z0-9]+)(?:-([a-z0-9]+))?$`)
)

// Validator parses and validates resource bodies before anything is written.
type Validator struct{}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// ValidateID checks a resource identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is empty", models.ErrMissingID)
	}
	if len(id) > MaxIDLength || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must match [a-z0-9]+", models.ErrInvalidID, id)
	}
	return nil
}

// ParseDigestID splits a digest id into its report id and the optional
// sub-report suffix ("rpt1" or "rpt1-host").
func ParseDigestID(id string) (reportID, suffix string, err error) {
	if len(id) > 2*MaxIDLength+1 {
		return "", "", fmt.Errorf("%w: %q is too long", models.ErrInvalidID, id)
	}
	m := digestIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q must match [a-z0-9]+ or [a-z0-9]+-[a-z0-9]+", models.ErrInvalidID, id)
	}
	return m[1], m[2], nil
}

// ValidateDescribed checks a script or batch body: a JSON object with a
// non-empty "what" field.
func (v *Validator) ValidateDescribed(data []byte) (*models.Described, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	what, ok := obj["what"].(string)
	if !ok || strings.TrimSpace(what) == "" {
		return nil, fmt.Errorf("%w: 'what'", models.ErrMissingField)
	}

	return &models.Described{What: what}, nil
}

// ValidateUser parses a user body and checks its id, auth code, email and
// roles.
func (v *Validator) ValidateUser(data []byte) (*models.User, error) {
	if _, err := decodeObject(data); err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedBody, err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("%w: user has no id", models.ErrMissingID)
	}
	if err := ValidateID(user.ID); err != nil {
		return nil, err
	}
	if user.AuthCode == "" {
		return nil, fmt.Errorf("%w: 'authCode'", models.ErrMissingField)
	}
	if err := validateEmail(user.Email); err != nil {
		return nil, err
	}

	seen := make(map[models.Role]bool, len(user.Roles))
	for _, role := range user.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", models.ErrMalformedBody, role)
		}
		if seen[role] {
			return nil, fmt.Errorf("%w: duplicate role %q", models.ErrMalformedBody, role)
		}
		seen[role] = true
	}
	if user.Roles == nil {
		user.Roles = []models.Role{}
	}

	return &user, nil
}

// validateEmail accepts an empty email or a single bare address. Display
// names and anything that would spill into other mail headers are rejected.
func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("%w: invalid email %q", models.ErrMalformedBody, email)
	}
	return nil
}

// ValidateReport parses a report submitted by caller. Checks run in a fixed
// order: missing tester, tester mismatch, missing id, malformed id.
func (v *Validator) ValidateReport(data []byte, caller string) (*models.Report, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	tester, _ := obj["tester"].(string)
	if tester == "" {
		return nil, fmt.Errorf("%w: report names no tester", models.ErrMissingTester)
	}
	if tester != caller {
		return nil, fmt.Errorf("%w: report tester %q is not %q", models.ErrTesterMismatch, tester, caller)
	}

	id, _ := obj["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: report has no id", models.ErrMissingID)
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	report := &models.Report{
		ID:         id,
		Tester:     tester,
		ScriptName: ScriptName(obj),
		Raw:        json.RawMessage(data),
	}
	report.Creator, _ = obj["creator"].(string)
	report.OrderID, _ = obj["orderID"].(string)

	return report, nil
}

// ValidateOrderRequest parses the body of an order submission.
func (v *Validator) ValidateOrderRequest(data []byte) (*models.OrderRequest, error) {
	if _, err := decodeObject(data); err != nil {
		return nil, err
	}

	var req models.OrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedBody, err)
	}

	if req.ScriptName == "" {
		return nil, fmt.Errorf("%w: 'scriptName'", models.ErrMissingField)
	}
	if err := ValidateID(req.ScriptName); err != nil {
		return nil, err
	}
	if req.BatchName != "" {
		if err := ValidateID(req.BatchName); err != nil {
			return nil, err
		}
	}

	return &req, nil
}

// ScriptName finds the name of the script a report came from: an explicit
// scriptName, or the id of an embedded script object.
func ScriptName(obj map[string]any) string {
	if name, ok := obj["scriptName"].(string); ok && name != "" {
		return name
	}
	if script, ok := obj["script"].(map[string]any); ok {
		if id, ok := script["id"].(string); ok {
			return id
		}
	}
	return ""
}

// decodeObject requires data to be a single JSON object.
func decodeObject(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: body is empty", models.ErrMalformedBody)
	}

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedBody, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", models.ErrMalformedBody)
	}

	return obj, nil
}
