package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/aorta/internal/digest"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/storage"
	"github.com/ppiankov/aorta/internal/validator"
)

// CreateDigest renders the digest of a report and stores it. digestID is a
// report id, optionally followed by "-suffix" to pick the host report
// whose id ends with suffix. Nothing is written unless rendering succeeds.
// The report lock is held from the read through the write, so a digest
// never outlives a replacement of its report.
func (m *Manager) CreateDigest(ctx context.Context, digestID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reportID, suffix, err := validator.ParseDigestID(digestID)
	if err != nil {
		return nil, err
	}

	unlock := m.store.Lock(storage.LockKey(models.TypeReport, reportID))
	defer unlock()

	data, err := m.store.Read(models.TypeReport, reportID)
	if err != nil {
		return nil, err
	}

	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil || report == nil {
		return nil, fmt.Errorf("failed to parse report %s: %v", reportID, err)
	}
	scriptName := validator.ScriptName(report)

	if suffix != "" {
		sub, err := hostReport(report, suffix)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", reportID, err)
		}
		if name := validator.ScriptName(sub); name != "" {
			scriptName = name
		}
		report = sub
	}

	digester, err := m.digesters.Lookup(scriptName)
	if err != nil {
		return nil, err
	}

	template, err := m.templates.Template(scriptName)
	if err != nil {
		if errors.Is(err, digest.ErrNoTemplate) {
			return nil, fmt.Errorf("%w: no template for %q", models.ErrUnknownDigester, scriptName)
		}
		return nil, err
	}

	values := map[string]string{}
	if err := digester(report, values); err != nil {
		return nil, fmt.Errorf("failed to digest report %s: %w", digestID, err)
	}

	html, err := digest.Render(template, values)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.Replace(models.TypeDigest, digestID, []byte(html)); err != nil {
		return nil, err
	}

	m.logger.Info("digest created", "id", digestID, "script", scriptName)
	return []byte(html), nil
}

// hostReport finds the entry of the report's hostReports array whose id
// ends with suffix.
func hostReport(report map[string]any, suffix string) (map[string]any, error) {
	hosts, _ := report["hostReports"].([]any)
	for _, h := range hosts {
		host, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := host["id"].(string); id != "" && strings.HasSuffix(id, suffix) {
			return host, nil
		}
	}
	return nil, fmt.Errorf("host report %q: %w", suffix, models.ErrNotFound)
}
