package schemas

// Event and RPC shapes exchanged with the external controller. The transport
// is treated as an opaque asynchronous request/response channel; these structs
// define the wire contract only.

// -- Outbound events --

// StepChangedEvent is emitted once per state transition, after the state has
// been durably persisted.
type StepChangedEvent struct {
	Step     StepID         `json:"step"`
	Platform string         `json:"platform"`
	Aux      map[string]any `json:"aux,omitempty"`
}

// ProgressEvent carries a monotonically non-decreasing position through the
// workflow sequence, plus an optional human-readable status line.
type ProgressEvent struct {
	Progress Progress `json:"progress"`
	Status   string   `json:"status,omitempty"`
}

// CompleteEvent is the terminal success signal for a run.
type CompleteEvent struct {
	Platform string         `json:"platform"`
	Flags    map[string]any `json:"completionFlags,omitempty"`
}

// ErrorEvent is the terminal failure signal, carrying the triggering error.
type ErrorEvent struct {
	Platform string `json:"platform"`
	Step     StepID `json:"step"`
	Error    string `json:"error"`
}

// LoginDetectedEvent is emitted instead of starting automation when the
// current page is an authentication page.
type LoginDetectedEvent struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// -- Inbound requests --

// StartFillRequest asks the engine to run the full posting sequence.
type StartFillRequest struct {
	Data ListingPayload `json:"data"`
}

// StartFillResponse acknowledges a start-fill request. A second request while
// a run is active is acknowledged with Success=true and a message rather than
// starting a duplicate run.
type StartFillResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckReadyResponse reports that the engine is injected and responsive.
type CheckReadyResponse struct {
	Ready bool   `json:"ready"`
	URL   string `json:"url"`
	Step  StepID `json:"step"`
}

// StatusResponse is a diagnostic snapshot of the current run.
type StatusResponse struct {
	Step              StepID         `json:"step"`
	FormFillAttempted bool           `json:"formFillAttempted"`
	ImagesUploaded    int            `json:"imagesUploaded"`
	CompletionFlags   map[string]any `json:"completionFlags,omitempty"`
}

// ResumeRequest asks the engine to continue a run from a persisted step.
type ResumeRequest struct {
	FromStep StepID         `json:"fromStep"`
	Data     ListingPayload `json:"data"`
}

// ResumeResponse acknowledges a resume request.
type ResumeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
