package nlparse

import (
	"strings"
	"unicode/utf8"
)

const (
	nameWords     = 5
	nameThreshold = 30
	ellipsis      = "..."
)

// workflowName takes the first five words of the instruction. The ellipsis
// is decided on the character count of the whole instruction, not of the
// name.
func workflowName(instruction string) string {
	words := strings.Fields(instruction)
	if len(words) > nameWords {
		words = words[:nameWords]
	}
	name := strings.Join(words, " ")
	if utf8.RuneCountInString(instruction) > nameThreshold {
		name += ellipsis
	}
	return name
}

// Assemble packages detected steps into a ParsedWorkflow. It returns an
// *InvariantError if the steps are structurally inconsistent.
func Assemble(instruction string, d Detection) (*ParsedWorkflow, error) {
	steps := d.Steps
	if steps == nil {
		steps = []Step{}
	}
	apps := d.RequiredApps
	if apps == nil {
		apps = []string{}
	}
	name := d.Name
	if name == "" {
		name = workflowName(instruction)
	}

	if err := Validate(steps); err != nil {
		return nil, err
	}
	return &ParsedWorkflow{
		Name:         name,
		Description:  instruction,
		Steps:        steps,
		RequiredApps: apps,
	}, nil
}
