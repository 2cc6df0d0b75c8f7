// Package model defines the domain types shared across spatialwatch:
// datasets, snapshots, diffs, findings, and process-local run status.
package model

import (
	"time"

	"github.com/kvarga/spatialwatch/internal/hash"
)

// DiffType classifies a change detected between two runs.
type DiffType string

const (
	DiffNew     DiffType = "NEW"
	DiffUpdated DiffType = "UPDATED"
	DiffDeleted DiffType = "DELETED"
)

// ReviewStatus is the lifecycle state of a Diff.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewAccepted ReviewStatus = "ACCEPTED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// FindingCategory is one of the Spatial Test Engine's check categories.
type FindingCategory string

const (
	CategoryValidity   FindingCategory = "VALIDITY"
	CategoryTopology   FindingCategory = "TOPOLOGY"
	CategoryArea       FindingCategory = "AREA"
	CategoryDuplicate  FindingCategory = "DUPLICATE"
	CategoryPolygon    FindingCategory = "POLYGON"
	CategoryLineString FindingCategory = "LINESTRING"
	CategoryPoint      FindingCategory = "POINT"
)

// FindingResult is the outcome of one check.
type FindingResult string

const (
	ResultPass    FindingResult = "PASS"
	ResultWarning FindingResult = "WARNING"
	ResultFail    FindingResult = "FAIL"
)

// ConnectionStatus reflects the outcome of a dataset's last change-detection run.
type ConnectionStatus string

const (
	ConnectionUnknown ConnectionStatus = ""
	ConnectionSuccess ConnectionStatus = "success"
	ConnectionFailed  ConnectionStatus = "failed"
)

// Dataset is a registration pointing at one table in a remote PostGIS database.
type Dataset struct {
	ID                 string
	Name               string
	Description        string
	Host               string
	Port               int
	Database           string
	Schema             string
	Table              string
	GeometryColumn     string
	RequireTLS         bool
	CheckIntervalMins  int
	Active             bool
	LastCheckAt        *time.Time
	ConnectionStatus   ConnectionStatus
	ConnectionError    string
	LastConnectionTest *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DatasetPatch carries the mutable subset of Dataset fields the control
// surface may update; nil fields are left unchanged.
type DatasetPatch struct {
	Name              *string
	Description       *string
	CheckIntervalMins *int
	Active            *bool
}

// Snapshot is one immutable version of one feature at one point in time.
type Snapshot struct {
	ID             string
	DatasetID      string
	SourceID       string // opaque, extracted from id/gid if present; may be empty
	GeometryHash   hash.Digest
	AttributesHash hash.Digest
	CompositeHash  hash.Digest
	GeometryWKB    []byte
	Attributes     map[string]string
	H3Cell         string // centroid bucket at h3cell.DefaultResolution, narrows DUPLICATE "near" candidates
	CreatedAt      time.Time
}

// Diff is a classified change awaiting (or past) human review.
type Diff struct {
	ID                string
	DatasetID         string
	Type              DiffType
	OldSnapshotID     string // empty unless Type is UPDATED or DELETED
	NewSnapshotID     string // empty unless Type is NEW or UPDATED
	GeometryChanged   bool
	AttributesChanged bool
	ConfidenceScore   float64
	Status            ReviewStatus
	ReviewedAt        *time.Time
	ReviewedBy        string
	CreatedAt         time.Time
}

// Finding is one quality-check outcome for one snapshot under one category.
type Finding struct {
	ID         string
	DatasetID  string
	SnapshotID string
	Category   FindingCategory
	Result     FindingResult
	Message    string
	Detail     map[string]any
	CreatedAt  time.Time
}

// RunPhase describes progress within a QualityCheckStatus entry.
type RunPhase string

const (
	PhaseInitializing RunPhase = "initializing"
	PhaseRunning      RunPhase = "running"
	PhaseDone         RunPhase = "done"
)

// RunState is the lifecycle state of a quality-check run.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// Progress is the {current, total, phase} triple reported during a run.
type Progress struct {
	Current int
	Total   int
	Phase   RunPhase
}

// FindingSummary maps (category, result) to a count, as produced by a
// Spatial Test Engine run and by Finding Store summarisation.
type FindingSummary map[FindingCategory]map[FindingResult]int

// QualityCheckStatus is process-local, non-persistent run state for one
// dataset's quality-check run.
type QualityCheckStatus struct {
	DatasetID   string
	DatasetName string
	State       RunState
	StartedAt   time.Time
	CompletedAt time.Time
	Progress    Progress
	Error       string
	Summary     FindingSummary
}

// DiffFilter narrows a Diff Store listing.
type DiffFilter struct {
	DatasetID string // empty = all
	Status    ReviewStatus
	Type      DiffType
	Offset    int
	Limit     int
}

// DiffStats aggregates diff counts for a dataset.
type DiffStats struct {
	Total    int
	Pending  int
	Accepted int
	Rejected int
	New      int
	Updated  int
	Deleted  int
}

// DatasetStats is the comprehensive read-only projection over a dataset.
type DatasetStats struct {
	DatasetID       string
	TotalSnapshots  int
	LastCheckAt     *time.Time
	Diffs           DiffStats
	FindingsByCheck map[FindingCategory]int
}
