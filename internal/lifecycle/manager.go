// Package lifecycle implements the resource state transitions: creation and
// removal, order to job on assignment, job to report on completion, and
// report to digest on summarization. Callers authorize before calling in.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/aorta/internal/credentials"
	"github.com/ppiankov/aorta/internal/digest"
	"github.com/ppiankov/aorta/internal/logging"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/notify"
	"github.com/ppiankov/aorta/internal/storage"
	"github.com/ppiankov/aorta/internal/validator"
)

// Manager performs lifecycle operations against a resource store.
type Manager struct {
	store     storage.Storage
	creds     *credentials.Store
	validator *validator.Validator
	digesters *digest.Registry
	templates digest.TemplateSource
	notifier  *notify.Dispatcher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for order ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithNotifier enables report notifications.
func WithNotifier(d *notify.Dispatcher) Option {
	return func(m *Manager) { m.notifier = d }
}

// WithDigesters replaces the digester registry.
func WithDigesters(r *digest.Registry) Option {
	return func(m *Manager) { m.digesters = r }
}

// WithTemplates replaces the digest template source.
func WithTemplates(src digest.TemplateSource) Option {
	return func(m *Manager) { m.templates = src }
}

// New creates a manager over st.
func New(st storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		creds:     credentials.New(st),
		validator: validator.New(),
		digesters: digest.DefaultRegistry(),
		templates: digest.NewFileTemplates(""),
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns every stored instance of t with a short description. Ids
// missing from a stored body are taken from the file name.
func (m *Manager) List(ctx context.Context, t models.ResourceType) ([]models.Entry, error) {
	ids, err := m.store.List(t)
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := models.Entry{ID: id}
		if t == models.TypeDigest {
			reportID, suffix, _ := validator.ParseDigestID(id)
			entry.Description = "Digest of report " + reportID
			if suffix != "" {
				entry.Description += " (" + suffix + ")"
			}
			entries = append(entries, entry)
			continue
		}

		data, err := m.readEntry(t, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Removed or assigned since the directory was read
				continue
			}
			return nil, err
		}

		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			m.logger.Warn("unreadable resource", "type", t, "id", id, "error", err)
			entries = append(entries, entry)
			continue
		}
		if stored, ok := obj["id"].(string); ok && stored != "" {
			entry.ID = stored
		}
		entry.Description = describe(t, obj)
		entries = append(entries, entry)
	}

	return entries, nil
}

// readEntry reads one listed resource, taking the lifecycle lock for
// orders and jobs.
func (m *Manager) readEntry(t models.ResourceType, id string) ([]byte, error) {
	if t != models.TypeOrder && t != models.TypeJob {
		return m.store.Read(t, id)
	}
	unlock := m.store.Lock(lifecycleKey(id))
	defer unlock()
	return m.readLifecycle(t, id)
}

// describe builds the listing description of a decoded resource.
func describe(t models.ResourceType, obj map[string]any) string {
	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}

	switch t {
	case models.TypeScript, models.TypeBatch:
		return str("what")
	case models.TypeOrder:
		desc := str("scriptName")
		if batch := str("batchName"); batch != "" {
			desc += " on " + batch
		}
		return desc + " ordered by " + str("creator")
	case models.TypeJob:
		desc := str("scriptName")
		if batch := str("batchName"); batch != "" {
			desc += " on " + batch
		}
		return desc + " assigned to " + str("tester")
	case models.TypeReport:
		desc := "tested by " + str("tester")
		if name := validator.ScriptName(obj); name != "" {
			desc = name + " " + desc
		}
		return desc
	case models.TypeUser:
		if name := str("name"); name != "" {
			return name
		}
		return str("id")
	}
	return ""
}

// Read returns the stored content of one resource. Orders and jobs are read
// under the lifecycle lock, so an assignment in progress is never seen
// half done.
func (m *Manager) Read(ctx context.Context, t models.ResourceType, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID(t, id); err != nil {
		return nil, err
	}
	return m.readEntry(t, id)
}

// readLifecycle reads an order or job under the lifecycle lock. An order
// whose job also exists was interrupted mid-assignment; the job wins.
func (m *Manager) readLifecycle(t models.ResourceType, id string) ([]byte, error) {
	if t == models.TypeOrder {
		assigned, err := m.store.Exists(models.TypeJob, id)
		if err != nil {
			return nil, err
		}
		if assigned {
			return nil, fmt.Errorf("%s %s: %w", models.TypeOrder, id, models.ErrNotFound)
		}
	}
	return m.store.Read(t, id)
}

// Create stores a new resource and returns its id. proposedID names scripts
// and batches; users and reports carry their id in the body; order ids are
// generated. caller is the authenticated identity.
func (m *Manager) Create(ctx context.Context, t models.ResourceType, proposedID string, body []byte, caller string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch t {
	case models.TypeScript, models.TypeBatch:
		return proposedID, m.createDescribed(t, proposedID, body)
	case models.TypeUser:
		user, err := m.CreateUser(ctx, proposedID, body)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	case models.TypeReport:
		report, err := m.CreateReport(ctx, body, caller)
		if err != nil {
			return "", err
		}
		return report.ID, nil
	case models.TypeOrder:
		order, err := m.CreateOrder(ctx, body, caller)
		if err != nil {
			return "", err
		}
		return order.ID, nil
	case models.TypeJob:
		return "", fmt.Errorf("%w: jobs are created by assigning an order", models.ErrMalformedBody)
	case models.TypeDigest:
		if _, err := m.CreateDigest(ctx, proposedID); err != nil {
			return "", err
		}
		return proposedID, nil
	}

	return "", fmt.Errorf("%w: %q", models.ErrUnknownResourceType, t)
}

func (m *Manager) createDescribed(t models.ResourceType, id string, body []byte) error {
	if err := validator.ValidateID(id); err != nil {
		return err
	}
	if _, err := m.validator.ValidateDescribed(body); err != nil {
		return err
	}
	if err := m.store.Create(t, id, body); err != nil {
		return err
	}
	m.logger.Info("resource created", "type", t, "id", id)
	return nil
}

// CreateUser stores a new user. A non-empty proposedID must equal the id
// in the body.
func (m *Manager) CreateUser(ctx context.Context, proposedID string, body []byte) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := m.validator.ValidateUser(body)
	if err != nil {
		return nil, err
	}
	if proposedID != "" && proposedID != user.ID {
		return nil, fmt.Errorf("%w: body id %q does not match %q", models.ErrMalformedBody, user.ID, proposedID)
	}

	if err := m.store.Create(models.TypeUser, user.ID, body); err != nil {
		return nil, err
	}
	m.logger.Info("resource created", "type", models.TypeUser, "id", user.ID)
	return user, nil
}

// ReplaceUser overwrites an existing user with a full new record.
func (m *Manager) ReplaceUser(ctx context.Context, id string, body []byte) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validator.ValidateID(id); err != nil {
		return nil, err
	}

	user, err := m.validator.ValidateUser(body)
	if err != nil {
		return nil, err
	}
	if user.ID != id {
		return nil, fmt.Errorf("%w: body id %q does not match %q", models.ErrMalformedBody, user.ID, id)
	}

	unlock := m.store.Lock(storage.LockKey(models.TypeUser, id))
	defer unlock()

	exists, err := m.store.Exists(models.TypeUser, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s %s: %w", models.TypeUser, id, models.ErrNotFound)
	}

	if err := m.store.Replace(models.TypeUser, id, body); err != nil {
		return nil, err
	}
	m.logger.Info("resource replaced", "type", models.TypeUser, "id", id)
	return user, nil
}

// Remove deletes one resource. Removing an order or job takes the
// lifecycle lock; removing a report also drops its digests.
func (m *Manager) Remove(ctx context.Context, t models.ResourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(t, id); err != nil {
		return err
	}

	switch t {
	case models.TypeOrder, models.TypeJob:
		unlock := m.store.Lock(lifecycleKey(id))
		defer unlock()
	case models.TypeReport:
		unlock := m.store.Lock(storage.LockKey(models.TypeReport, id))
		defer unlock()
	}

	if err := m.store.Delete(t, id); err != nil {
		return err
	}
	m.logger.Info("resource removed", "type", t, "id", id)

	if t == models.TypeReport {
		return m.invalidateDigests(id)
	}
	return nil
}

// checkID validates id for t. Digest ids may carry a sub-report suffix.
func checkID(t models.ResourceType, id string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownResourceType, t)
	}
	if t == models.TypeDigest {
		_, _, err := validator.ParseDigestID(id)
		return err
	}
	return validator.ValidateID(id)
}

// lifecycleKey is the lock shared by an order and the job it becomes.
func lifecycleKey(id string) string {
	return storage.LockKey(models.TypeOrder, id)
}

// invalidateDigests deletes every digest derived from reportID.
func (m *Manager) invalidateDigests(reportID string) error {
	ids, err := m.store.List(models.TypeDigest)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id != reportID && !strings.HasPrefix(id, reportID+"-") {
			continue
		}
		if err := m.store.Delete(models.TypeDigest, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		m.logger.Info("digest invalidated", "id", id, "report", reportID)
	}
	return nil
}
