package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusSucceeded  TaskStatus = "SUCCEEDED"
	StatusFailed     TaskStatus = "FAILED"
	StatusDeleted    TaskStatus = "DELETED"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from one status to another.
// Transitions only run forward: PENDING -> IN_PROGRESS -> terminal. A
// terminal status never changes again.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusInProgress || to.Terminal()
	case StatusInProgress:
		return to.Terminal()
	default:
		return false
	}
}

type TaskSource string

const (
	SourceImage      TaskSource = "image"
	SourceMultiImage TaskSource = "multi_image"
	SourceText       TaskSource = "text"
)

// TaskMode selects the provider endpoint and response shape. It is derived
// from the source and the refine flag at creation time and never changes.
type TaskMode string

const (
	ModeImage       TaskMode = "image-to-3d"
	ModeMultiImage  TaskMode = "multi-image-to-3d"
	ModeTextPreview TaskMode = "text-preview"
	ModeTextRefine  TaskMode = "text-refine"
)

func ModeFor(source TaskSource, refine bool) TaskMode {
	switch source {
	case SourceImage:
		return ModeImage
	case SourceMultiImage:
		return ModeMultiImage
	case SourceText:
		if refine {
			return ModeTextRefine
		}
		return ModeTextPreview
	}
	return ""
}

type ModelURLs struct {
	GLB  string `json:"glb,omitempty"`
	FBX  string `json:"fbx,omitempty"`
	USDZ string `json:"usdz,omitempty"`
	OBJ  string `json:"obj,omitempty"`
}

func (m ModelURLs) Empty() bool {
	return m == ModelURLs{}
}

type TextureSet struct {
	BaseColor string `json:"base_color,omitempty"`
	Metallic  string `json:"metallic,omitempty"`
	Normal    string `json:"normal,omitempty"`
	Roughness string `json:"roughness,omitempty"`
}

type Task struct {
	ID           string
	OwnerID      string
	TraceID      string
	Source       TaskSource
	Prompt       string
	ImageURL     string
	ImageURLs    []string
	RefineFrom   string
	Mode         TaskMode
	MeshyTaskID  string
	Status       TaskStatus
	Progress     int
	ThumbnailURL string
	ModelURLs    ModelURLs
	TextureURLs  []TextureSet
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Snapshot is the provider-reported view of a task. Zero values mean the
// provider did not report the field, not that it was cleared.
type Snapshot struct {
	Status       TaskStatus
	Progress     int
	ThumbnailURL string
	ModelURLs    *ModelURLs
	TextureURLs  []TextureSet
	ErrorMessage string
}

// Merge folds a provider snapshot into the task, field by field. A field is
// replaced only when the snapshot carries it; an absent field never clears a
// previously stored value. Status honors CanTransition and progress is
// monotonic, so repeated merges of stale snapshots are no-ops.
func (t *Task) Merge(s Snapshot) bool {
	changed := false

	if s.Status != "" && CanTransition(t.Status, s.Status) {
		t.Status = s.Status
		changed = true
	}
	if s.Progress > t.Progress {
		t.Progress = s.Progress
		changed = true
	}
	if s.ThumbnailURL != "" && s.ThumbnailURL != t.ThumbnailURL {
		t.ThumbnailURL = s.ThumbnailURL
		changed = true
	}
	if s.ModelURLs != nil {
		if s.ModelURLs.GLB != "" && s.ModelURLs.GLB != t.ModelURLs.GLB {
			t.ModelURLs.GLB = s.ModelURLs.GLB
			changed = true
		}
		if s.ModelURLs.FBX != "" && s.ModelURLs.FBX != t.ModelURLs.FBX {
			t.ModelURLs.FBX = s.ModelURLs.FBX
			changed = true
		}
		if s.ModelURLs.USDZ != "" && s.ModelURLs.USDZ != t.ModelURLs.USDZ {
			t.ModelURLs.USDZ = s.ModelURLs.USDZ
			changed = true
		}
		if s.ModelURLs.OBJ != "" && s.ModelURLs.OBJ != t.ModelURLs.OBJ {
			t.ModelURLs.OBJ = s.ModelURLs.OBJ
			changed = true
		}
	}
	if len(s.TextureURLs) > 0 {
		t.TextureURLs = s.TextureURLs
		changed = true
	}
	if s.ErrorMessage != "" && s.ErrorMessage != t.ErrorMessage {
		t.ErrorMessage = s.ErrorMessage
		changed = true
	}

	return changed
}
