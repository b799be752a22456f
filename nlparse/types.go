// Package nlparse turns free-text automation instructions into ordered,
// dependency-linked workflow descriptions.
//
// Parsing is pattern-first: a fixed set of intent matchers recognises common
// phrasing ("send an email to ...", "post to slack #dev", "wait for 5 minutes")
// without any network call. Only when nothing matches does the Parser ask a
// language model, and any model failure degrades to the pattern result.
package nlparse

import "time"

// StepType is the closed set of step kinds.
type StepType string

const (
	StepAction    StepType = "action"
	StepCondition StepType = "condition"
	StepLoop      StepType = "loop"
	StepDelay     StepType = "delay"
	StepWebhook   StepType = "webhook"
)

// Valid reports whether t is one of the known step kinds.
func (t StepType) Valid() bool {
	switch t {
	case StepAction, StepCondition, StepLoop, StepDelay, StepWebhook:
		return true
	}
	return false
}

// Step is one unit of a workflow.
type Step struct {
	ID          string       `json:"id"`
	Type        StepType     `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	App         string       `json:"app,omitempty"`
	Action      string       `json:"action,omitempty"`
	Parameters  Parameters   `json:"parameters,omitempty"`
	Condition   *Condition   `json:"condition,omitempty"`
	DependsOn   []string     `json:"dependsOn,omitempty"`
	RetryPolicy *RetryPolicy `json:"retryPolicy,omitempty"`
}

// Condition holds the branches of a condition step.
type Condition struct {
	Expression string `json:"expression"`
	Then       []Step `json:"then"`
	Else       []Step `json:"else,omitempty"`
}

// RetryPolicy bounds re-execution of a step that failed transiently.
type RetryPolicy struct {
	MaxAttempts int   `json:"maxAttempts"`
	DelayMs     int64 `json:"delayMs"`
}

// ParsedWorkflow is the result of parsing one instruction. It is built fresh
// on every call and never modified afterwards.
type ParsedWorkflow struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Steps        []Step   `json:"steps"`
	RequiredApps []string `json:"requiredApps"`

	// EstimatedDuration is reserved for a downstream scheduler.
	EstimatedDuration *int64 `json:"estimatedDuration,omitempty"`
}

// Clock supplies the current time. Detection uses it when an instruction
// mentions an event without a time.
type Clock func() time.Time

// collectApps returns the apps referenced by steps, including steps nested
// in condition branches, deduplicated in first-use order.
func collectApps(steps []Step) []string {
	apps := []string{}
	seen := map[string]bool{}
	var walk func([]Step)
	walk = func(ss []Step) {
		for _, s := range ss {
			if s.App != "" && !seen[s.App] {
				seen[s.App] = true
				apps = append(apps, s.App)
			}
			if s.Condition != nil {
				walk(s.Condition.Then)
				walk(s.Condition.Else)
			}
		}
	}
	walk(steps)
	return apps
}
