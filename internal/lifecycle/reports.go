package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/notify"
	"github.com/ppiankov/aorta/internal/storage"
	"github.com/ppiankov/aorta/internal/validator"
)

// CreateReport stores a report submitted by caller. Any digest left over
// from an earlier report with the same id is deleted, and the report's
// creator is notified.
func (m *Manager) CreateReport(ctx context.Context, body []byte, caller string) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := m.validator.ValidateReport(body, caller)
	if err != nil {
		return nil, err
	}

	if err := m.storeReport(report, false); err != nil {
		return nil, err
	}

	m.logger.Info("report created", "id", report.ID, "tester", caller)
	m.notifyReports(report.Creator, caller, []string{report.ID})
	return report, nil
}

// ReplaceReport regenerates an existing report. The tester of the new
// version must be caller and match the stored version. Every digest of
// the report is invalidated.
func (m *Manager) ReplaceReport(ctx context.Context, id string, body []byte, caller string) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validator.ValidateID(id); err != nil {
		return nil, err
	}

	report, err := m.validator.ValidateReport(body, caller)
	if err != nil {
		return nil, err
	}
	if report.ID != id {
		return nil, fmt.Errorf("%w: body id %q does not match %q", models.ErrMalformedBody, report.ID, id)
	}

	if err := m.storeReport(report, true); err != nil {
		return nil, err
	}

	m.logger.Info("report replaced", "id", id, "tester", caller)
	return report, nil
}

func (m *Manager) storeReport(report *models.Report, replace bool) error {
	unlock := m.store.Lock(storage.LockKey(models.TypeReport, report.ID))
	defer unlock()

	if replace {
		existing, err := m.store.Read(models.TypeReport, report.ID)
		if err != nil {
			return err
		}
		var prior struct {
			Tester string `json:"tester"`
		}
		if err := json.Unmarshal(existing, &prior); err != nil {
			return fmt.Errorf("failed to parse report %s: %w", report.ID, err)
		}
		if prior.Tester != report.Tester {
			return fmt.Errorf("%w: report %s belongs to %q", models.ErrTesterMismatch, report.ID, prior.Tester)
		}
		if err := m.store.Replace(models.TypeReport, report.ID, report.Raw); err != nil {
			return err
		}
	} else if err := m.store.Create(models.TypeReport, report.ID, report.Raw); err != nil {
		return err
	}

	return m.invalidateDigests(report.ID)
}

// CompleteJob records the reports of job jobID, submitted by its tester,
// and deletes the job. Every report is checked before any is written.
func (m *Manager) CompleteJob(ctx context.Context, jobID, caller string, bodies []json.RawMessage) ([]*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validator.ValidateID(jobID); err != nil {
		return nil, err
	}
	if len(bodies) == 0 {
		return nil, fmt.Errorf("%w: 'reports'", models.ErrMissingField)
	}

	unlock := m.store.Lock(lifecycleKey(jobID))
	defer unlock()

	job, err := m.readJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Tester != caller {
		return nil, fmt.Errorf("%w: job %s is assigned to %q", models.ErrTesterMismatch, jobID, job.Tester)
	}

	reports := make([]*models.Report, 0, len(bodies))
	seen := make(map[string]bool, len(bodies))
	for _, body := range bodies {
		stamped, err := stampReport(body, job)
		if err != nil {
			return nil, err
		}
		report, err := m.validator.ValidateReport(stamped, caller)
		if err != nil {
			return nil, err
		}
		if seen[report.ID] {
			return nil, fmt.Errorf("%w: report %s submitted twice", models.ErrDuplicateID, report.ID)
		}
		seen[report.ID] = true

		exists, err := m.store.Exists(models.TypeReport, report.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s %s: %w", models.TypeReport, report.ID, models.ErrDuplicateID)
		}
		reports = append(reports, report)
	}

	var created []string
	for _, report := range reports {
		if err := m.storeReport(report, false); err != nil {
			m.rollbackReports(created)
			return nil, err
		}
		created = append(created, report.ID)
	}

	if err := m.store.Delete(models.TypeJob, jobID); err != nil {
		m.rollbackReports(created)
		return nil, err
	}

	m.logger.Info("job completed", "id", jobID, "tester", caller, "reports", len(created))
	m.notifyReports(job.Creator, caller, created)
	return reports, nil
}

// stampReport records the job's order id and creator in a report body
// unless the body already names them.
func stampReport(body json.RawMessage, job *models.Job) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: report must be a JSON object", models.ErrMalformedBody)
	}
	if _, ok := obj["orderID"]; !ok {
		obj["orderID"] = job.ID
	}
	if _, ok := obj["creator"]; !ok {
		obj["creator"] = job.Creator
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

func (m *Manager) rollbackReports(ids []string) {
	for _, id := range ids {
		if err := m.store.Delete(models.TypeReport, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			m.logger.Error("failed to roll back report", "id", id, "error", err)
		}
	}
}

// notifyReports tells the order creator that reports are available.
func (m *Manager) notifyReports(creator, tester string, reportIDs []string) {
	if m.notifier == nil || creator == "" || len(reportIDs) == 0 {
		return
	}

	user, err := m.creds.LookupUser(creator)
	if err != nil {
		m.logger.Warn("cannot notify report creator", "creator", creator, "error", err)
		return
	}
	if user.Email == "" {
		m.logger.Info("report creator has no email", "creator", creator)
		return
	}

	subject := "AORTA report ready: " + strings.Join(reportIDs, ", ")
	body := fmt.Sprintf("Tester %s submitted %d report(s) for your order:\n\n%s\n",
		tester, len(reportIDs), strings.Join(reportIDs, "\n"))
	m.notifier.Dispatch(notify.Message{To: user.Email, Subject: subject, Body: body})
}
