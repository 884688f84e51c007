package engine

import (
	"encoding/json"
	"fmt"
)

// Action tags the lifecycle position of an event within its phase.
type Action string

// Supported lifecycle actions. An empty Action is treated like
// ActionProcessing.
const (
	ActionStarted    Action = "started"
	ActionProcessing Action = "processing"
	ActionCompleted  Action = "completed"
)

// Event is one inbound progress report from the generation pipeline. All
// fields are optional; whatever cannot be interpreted is ignored rather than
// rejected.
type Event struct {
	// Message is free text; it is only inspected for the research-evaluation
	// early-exit marker.
	Message string `json:"message,omitempty"`
	// Phase routes the event. Unrecognized values are accepted and ignored.
	Phase string `json:"phase,omitempty"`
	// Progress is the raw fraction, conventionally in [0,1] but clamped.
	Progress *float64 `json:"phase_progress,omitempty"`
	// Preview optionally carries structured payloads for step attribution and
	// totals discovery.
	Preview *Preview `json:"preview_data,omitempty"`
	// Action is one of started/processing/completed, or empty.
	Action Action `json:"action,omitempty"`
}

// Preview payload type tags recognized by totals discovery. Any other tag
// decodes to "no information".
const (
	PreviewModulesDefined          = "modules_defined"
	PreviewAllSubmodulesPlanned    = "all_submodules_planned"
	PreviewModuleSubmodulesPlanned = "module_submodules_planned"
)

// Preview is a tagged payload embedded in pipeline events. Data is kept raw
// and decoded per tag so that partially-shaped or malformed payloads degrade
// to no-ops instead of failing the event.
type Preview struct {
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ModulePlan is one planned module inside a preview payload.
type ModulePlan struct {
	ID    int    `json:"id"`
	Title string `json:"title,omitempty"`
}

// SubmodulePlan is one planned submodule inside a preview payload.
type SubmodulePlan struct {
	ID    int    `json:"id"`
	Title string `json:"title,omitempty"`
}

// modulesDefinedPayload is the body of a modules_defined preview.
type modulesDefinedPayload struct {
	Modules []ModulePlan `json:"modules"`
}

// allSubmodulesPlannedPayload is the body of an all_submodules_planned
// preview.
type allSubmodulesPlannedPayload struct {
	Modules                []ModulePlan `json:"modules"`
	TotalSubmodulesPlanned *int         `json:"total_submodules_planned"`
}

// moduleSubmodulesPlannedPayload is the body of a module_submodules_planned
// preview.
type moduleSubmodulesPlannedPayload struct {
	ModuleID   *int            `json:"module_id"`
	Submodules []SubmodulePlan `json:"submodules"`
}

// stepAttribution carries the (module, submodule) pair a step event belongs
// to. Both ids are required; anything else is unattributable.
type stepAttribution struct {
	ModuleID    *int `json:"module_id"`
	SubmoduleID *int `json:"submodule_id"`
}

// submoduleRef extracts the step attribution pair from the preview, or
// reports false when the payload is missing, malformed, or incomplete.
func (p *Preview) submoduleRef() (moduleID, submoduleID int, ok bool) {
	if p == nil || len(p.Data) == 0 {
		return 0, 0, false
	}
	var attr stepAttribution
	if err := json.Unmarshal(p.Data, &attr); err != nil {
		return 0, 0, false
	}
	if attr.ModuleID == nil || attr.SubmoduleID == nil {
		return 0, 0, false
	}
	return *attr.ModuleID, *attr.SubmoduleID, true
}

// SubmoduleKey identifies one (module, submodule) pair as a single map key.
type SubmoduleKey string

// NewSubmoduleKey builds the canonical key for a module/submodule pair.
func NewSubmoduleKey(moduleID, submoduleID int) SubmoduleKey {
	return SubmoduleKey(fmt.Sprintf("%d_%d", moduleID, submoduleID))
}
