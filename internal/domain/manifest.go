package domain

import "time"

// Artifact is one published, compressed product file.
type Artifact struct {
	Name   string     `json:"name"`
	Stream StreamName `json:"stream"`
	Region string     `json:"region,omitempty"`
	Path   string     `json:"path"`
	Size   int64      `json:"size"`
}

// RunManifest summarizes a completed run for notification and bookkeeping.
type RunManifest struct {
	RunLabel       string     `json:"run_label"`
	RunTime        time.Time  `json:"run_time"`
	Files          int        `json:"files"`
	PrimaryRecords int        `json:"primary_records"`
	WindRecords    int        `json:"wind_records"`
	Artifacts      []Artifact `json:"artifacts"`
	SkippedSlices  []string   `json:"skipped_slices,omitempty"`
	SlicingSkipped bool       `json:"slicing_skipped"`
	StartedAt      time.Time  `json:"started_at"`
	PublishedAt    time.Time  `json:"published_at"`
}

// Degraded reports whether any cropped product is missing from the run.
func (m RunManifest) Degraded() bool {
	return m.SlicingSkipped || len(m.SkippedSlices) > 0
}
