package nlparse

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by InvariantError.
var (
	ErrDuplicateStepID   = errors.New("duplicate step id")
	ErrForwardDependency = errors.New("dependency on a step that does not precede it")
	ErrInvalidStep       = errors.New("invalid step")
	ErrEmptyInstruction  = errors.New("instruction is empty")
)

// InvariantError reports a workflow that violates a structural invariant.
// It indicates a bug in a matcher or in model-response validation, never bad
// user input.
type InvariantError struct {
	StepID string
	Err    error
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("workflow invariant violated at step %q: %v: %s", e.StepID, e.Err, e.Detail)
	}
	return fmt.Sprintf("workflow invariant violated at step %q: %v", e.StepID, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// Validate checks ids are unique across the workflow (branches included),
// that every dependency names an earlier step, and that condition and delay
// steps are well formed. Condition branches may be empty; see ValidateStrict.
func Validate(steps []Step) error {
	return validate(steps, false)
}

// ValidateStrict is Validate plus the requirement that every condition step
// has a non-empty then branch. It is applied to model output.
func ValidateStrict(steps []Step) error {
	return validate(steps, true)
}

func validate(steps []Step, strict bool) error {
	ids := map[string]bool{}
	return validateScope(steps, ids, map[string]bool{}, strict)
}

// validateScope walks one step sequence. ids tracks every id in the workflow;
// visible holds the ids a step in this sequence may depend on.
func validateScope(steps []Step, ids, visible map[string]bool, strict bool) error {
	scope := make(map[string]bool, len(visible)+len(steps))
	for id := range visible {
		scope[id] = true
	}

	for _, s := range steps {
		if s.ID == "" {
			return &InvariantError{Err: ErrInvalidStep, Detail: "missing id"}
		}
		if ids[s.ID] {
			return &InvariantError{StepID: s.ID, Err: ErrDuplicateStepID}
		}
		ids[s.ID] = true

		if !s.Type.Valid() {
			return &InvariantError{StepID: s.ID, Err: ErrInvalidStep, Detail: fmt.Sprintf("unknown type %q", s.Type)}
		}
		for _, dep := range s.DependsOn {
			if !scope[dep] {
				return &InvariantError{StepID: s.ID, Err: ErrForwardDependency, Detail: dep}
			}
		}

		switch s.Type {
		case StepDelay:
			ms, ok := s.Parameters["duration"].Int64()
			if !ok || ms <= 0 {
				return &InvariantError{StepID: s.ID, Err: ErrInvalidStep, Detail: "delay needs a positive integer duration in ms"}
			}
		case StepCondition:
			if s.Condition == nil {
				return &InvariantError{StepID: s.ID, Err: ErrInvalidStep, Detail: "condition step without condition"}
			}
			if strict && len(s.Condition.Then) == 0 {
				return &InvariantError{StepID: s.ID, Err: ErrInvalidStep, Detail: "empty then branch"}
			}
			for _, branch := range [][]Step{s.Condition.Then, s.Condition.Else} {
				if err := validateScope(branch, ids, scope, strict); err != nil {
					return err
				}
			}
		}

		scope[s.ID] = true
	}
	return nil
}
