package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// ArchivedReport is the document written for every finished run.
type ArchivedReport struct {
	Run    domain.RecoveryRun `json:"run"`
	Report json.RawMessage    `json:"report"`
}

// ReportArchive writes run reports as JSON objects under a key prefix.
type ReportArchive struct {
	store  ObjectStorage
	prefix string
}

func NewReportArchive(store ObjectStorage, prefix string) *ReportArchive {
	return &ReportArchive{store: store, prefix: prefix}
}

// Key returns the object key of a run's report.
func (a *ReportArchive) Key(run domain.RecoveryRun) string {
	name := fmt.Sprintf("%06d_%s_%s.json", run.ID, run.WindowStart.Format("20060102"), run.WindowEnd.Format("20060102"))
	return path.Join(a.prefix, string(run.Mode), name)
}

// Save uploads the run together with report and returns the object key.
func (a *ReportArchive) Save(ctx context.Context, run domain.RecoveryRun, report any) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}
	doc, err := json.MarshalIndent(ArchivedReport{Run: run, Report: body}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode archived report: %w", err)
	}

	key := a.Key(run)
	if err := a.store.UploadObject(ctx, key, doc, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads an archived report; report, when non-nil, receives the decoded
// report body.
func (a *ReportArchive) Load(ctx context.Context, key string, report any) (*ArchivedReport, error) {
	data, err := a.store.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}

	var doc ArchivedReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode archived report %s: %w", key, err)
	}
	if report != nil {
		if err := json.Unmarshal(doc.Report, report); err != nil {
			return nil, fmt.Errorf("decode report body %s: %w", key, err)
		}
	}
	return &doc, nil
}

// List returns the report keys of a mode, oldest run first. An empty mode
// lists every report.
func (a *ReportArchive) List(ctx context.Context, mode domain.RunMode) ([]string, error) {
	prefix := a.prefix
	if mode != "" {
		prefix = path.Join(a.prefix, string(mode))
	}
	if prefix != "" {
		prefix += "/"
	}

	objects, err := a.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if path.Ext(o.Key) == ".json" {
			keys = append(keys, o.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return path.Base(keys[i]) < path.Base(keys[j]) })
	return keys, nil
}
