// Package schemas holds the shared data model of the posting engine: the
// listing payload handed in by the external controller, the workflow state
// machine vocabulary, and the event/RPC shapes exchanged over the transport.
package schemas

import (
	"time"
)

// ListingPayload is the immutable input to a workflow run. It is created by
// the external controller and read-only for the engine.
type ListingPayload struct {
	Title       string   `json:"title" validate:"required"`
	Price       string   `json:"price" validate:"required"`
	Description string   `json:"description"`
	// Category is optional; when empty the engine infers it from the
	// title and description keyword tables.
	Category       string   `json:"category,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
	Location       string   `json:"location,omitempty"`
	DeliveryMethod string   `json:"deliveryMethod,omitempty"`
	MaxGroups      int      `json:"maxGroups,omitempty"`
	SkipGroups     bool     `json:"skipGroups,omitempty"`
}

// StepID identifies one state of the posting workflow.
type StepID string

const (
	StepIdle               StepID = "idle"
	StepUploadingImages    StepID = "uploading_images"
	StepFormFill           StepID = "form_fill"
	StepSelectingCategory  StepID = "selecting_category"
	StepSelectingCondition StepID = "selecting_condition"
	StepClickingNext1      StepID = "clicking_next_1"
	StepLocationDelivery   StepID = "location_delivery"
	StepClickingNext2      StepID = "clicking_next_2"
	StepVisibilityOptions  StepID = "visibility_options"
	StepPublishing         StepID = "publishing"
	StepCompleted          StepID = "completed"
	StepError              StepID = "error"
)

// sequence is the fixed mid-flow order of the posting workflow. Idle,
// Completed and Error are not executable steps and never appear here.
var sequence = []StepID{
	StepUploadingImages,
	StepFormFill,
	StepSelectingCategory,
	StepSelectingCondition,
	StepClickingNext1,
	StepLocationDelivery,
	StepClickingNext2,
	StepVisibilityOptions,
	StepPublishing,
}

// Sequence returns the fixed ordered list of executable steps.
func Sequence() []StepID {
	out := make([]StepID, len(sequence))
	copy(out, sequence)
	return out
}

// SuffixFrom returns the ordered suffix of the step sequence starting at the
// given step, allowing a fresh engine instance to resume a run mid-flow after
// a page navigation destroyed all in-memory state. It returns nil when the
// step is not a mid-flow step.
func SuffixFrom(step StepID) []StepID {
	for i, s := range sequence {
		if s == step {
			out := make([]StepID, len(sequence)-i)
			copy(out, sequence[i:])
			return out
		}
	}
	return nil
}

// Position returns the 1-based position of a step in the full sequence, or 0
// if the step is not part of it. Used to derive monotonic progress values.
func Position(step StepID) int {
	for i, s := range sequence {
		if s == step {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether the step belongs to the closed enumeration.
func (s StepID) Valid() bool {
	switch s {
	case StepIdle, StepCompleted, StepError:
		return true
	}
	return Position(s) > 0
}

// WorkflowState is the durably persisted record of a run. Exactly one state
// is current per run; it is the sole source of truth for resumption.
type WorkflowState struct {
	Step      StepID         `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Aux       map[string]any `json:"aux,omitempty"`
}

// CompletionFlags records which sub-operations within a step were observed to
// succeed. Append-only within a run; cleared when a new run starts.
type CompletionFlags struct {
	values map[string]any
}

// NewCompletionFlags returns an empty flag set.
func NewCompletionFlags() *CompletionFlags {
	return &CompletionFlags{values: make(map[string]any)}
}

// Set records a boolean outcome for a key.
func (f *CompletionFlags) Set(key string, ok bool) {
	f.values[key] = ok
}

// SetCount records a counter outcome for a key (e.g. groupsSelected=3).
func (f *CompletionFlags) SetCount(key string, n int) {
	f.values[key] = n
}

// Bool reports the recorded boolean outcome for a key.
func (f *CompletionFlags) Bool(key string) bool {
	v, ok := f.values[key].(bool)
	return ok && v
}

// Count reports the recorded counter outcome for a key.
func (f *CompletionFlags) Count(key string) int {
	v, _ := f.values[key].(int)
	return v
}

// Snapshot returns a copy of the flag map for status reporting.
func (f *CompletionFlags) Snapshot() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Progress is a numeric position within the workflow sequence.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}
