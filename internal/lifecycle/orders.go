package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/validator"
)

// Order ids count OrderIDResolution ticks since OrderIDAnchor, in base 36.
var OrderIDAnchor = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	OrderIDResolution = 200 * time.Millisecond

	// maxOrderIDAttempts bounds the search for a free id when orders are
	// created within the same tick.
	maxOrderIDAttempts = 16
)

// OrderSerial returns the tick count of t.
func OrderSerial(t time.Time) int64 {
	n := t.Sub(OrderIDAnchor) / OrderIDResolution
	if n < 0 {
		return 0
	}
	return int64(n)
}

// OrderID renders a tick count as an order id.
func OrderID(serial int64) string {
	return strconv.FormatInt(serial, 36)
}

// CreateOrder stores a new order by creator. The referenced script and
// batch are embedded when they can be read, with validity flags recording
// whether they could.
func (m *Manager) CreateOrder(ctx context.Context, body []byte, creator string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := m.validator.ValidateOrderRequest(body)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	order := &models.Order{
		Creator:      creator,
		CreationTime: now,
		ScriptName:   req.ScriptName,
		BatchName:    req.BatchName,
	}
	order.Script, order.ScriptIsValid = m.embed(models.TypeScript, req.ScriptName)
	if req.BatchName != "" {
		order.Batch, order.BatchIsValid = m.embed(models.TypeBatch, req.BatchName)
	}

	serial := OrderSerial(now)
	for attempt := int64(0); attempt < maxOrderIDAttempts; attempt++ {
		order.ID = OrderID(serial + attempt)

		err := m.storeOrder(order)
		if err == nil {
			m.logger.Info("order created", "id", order.ID, "creator", creator, "script", order.ScriptName)
			return order, nil
		}
		if !errors.Is(err, models.ErrDuplicateID) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no free order id near %s", models.ErrDuplicateID, OrderID(serial))
}

// storeOrder creates the order unless its id is taken by an order or job.
func (m *Manager) storeOrder(order *models.Order) error {
	unlock := m.store.Lock(lifecycleKey(order.ID))
	defer unlock()

	taken, err := m.store.Exists(models.TypeJob, order.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%s %s: %w", models.TypeJob, order.ID, models.ErrDuplicateID)
	}

	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	return m.store.Create(models.TypeOrder, order.ID, data)
}

// embed returns the stored JSON of a script or batch and whether it could
// be read and parsed.
func (m *Manager) embed(t models.ResourceType, id string) (json.RawMessage, bool) {
	data, err := m.store.Read(t, id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			m.logger.Warn("failed to read referenced resource", "type", t, "id", id, "error", err)
		}
		return nil, false
	}
	if !json.Valid(data) {
		m.logger.Warn("referenced resource is not valid JSON", "type", t, "id", id)
		return nil, false
	}
	return json.RawMessage(data), true
}

// Assign turns order orderID into a job for tester. The order record is
// replaced by the job record in one step under the lifecycle lock, so
// concurrent assignments of one order have a single winner.
func (m *Manager) Assign(ctx context.Context, orderID, assigner, tester string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validator.ValidateID(orderID); err != nil {
		return nil, err
	}

	data, err := m.store.Read(models.TypeOrder, orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownOrder, orderID)
		}
		return nil, err
	}

	if err := m.checkTester(tester); err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to parse order %s: %w", orderID, err)
	}
	order.ID = orderID

	job := models.NewJob(order, assigner, tester, m.now().UTC())
	jobData, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	err = m.store.Move(lifecycleKey(orderID), models.TypeOrder, orderID, models.TypeJob, orderID, jobData)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownOrder, orderID)
		}
		return nil, err
	}

	m.logger.Info("order assigned", "id", orderID, "assigner", assigner, "tester", tester)
	return &job, nil
}

// checkTester requires tester to be a stored user with the test role.
func (m *Manager) checkTester(tester string) error {
	if tester == "" {
		return fmt.Errorf("%w: no tester named", models.ErrUnknownTester)
	}

	user, err := m.creds.LookupUser(tester)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidID) {
			return fmt.Errorf("%w: %s", models.ErrUnknownTester, tester)
		}
		return err
	}
	if !user.HasRole(models.RoleTest) {
		return fmt.Errorf("%w: %s", models.ErrTesterLacksRole, tester)
	}
	return nil
}

// Lookup returns the current state of lifecycle id: a pending order or
// the job it became.
func (m *Manager) Lookup(ctx context.Context, id string) (models.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validator.ValidateID(id); err != nil {
		return nil, err
	}

	unlock := m.store.Lock(lifecycleKey(id))
	defer unlock()

	data, err := m.readLifecycle(models.TypeOrder, id)
	if err == nil {
		var order models.Order
		if err := json.Unmarshal(data, &order); err != nil {
			return nil, fmt.Errorf("failed to parse order %s: %w", id, err)
		}
		order.ID = id
		return models.Pending{Order: order}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	job, err := m.readJob(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownOrder, id)
		}
		return nil, err
	}
	return models.Assigned{Job: *job}, nil
}

// ListAssignedJobs returns the jobs assigned to tester, sorted by id.
func (m *Manager) ListAssignedJobs(ctx context.Context, tester string) ([]models.Job, error) {
	ids, err := m.store.List(models.TypeJob)
	if err != nil {
		return nil, err
	}

	jobs := []models.Job{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := m.readJob(id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if job.Tester == tester {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (m *Manager) readJob(id string) (*models.Job, error) {
	data, err := m.store.Read(models.TypeJob, id)
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", id, err)
	}
	job.ID = id
	return &job, nil
}
