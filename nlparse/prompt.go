package nlparse

import (
	"fmt"
	"strings"
)

// SystemPrompt describes the workflow JSON shape the model must produce.
func SystemPrompt() string {
	return `You convert natural-language automation requests into workflow definitions.

Respond with a single JSON object and nothing else. The object has this shape:

{
  "name": "short title",
  "description": "what the workflow does",
  "steps": [
    {
      "id": "step_1",
      "type": "action | condition | loop | delay | webhook",
      "name": "short label",
      "description": "what this step does",
      "app": "integration id, omitted for delay and plain conditions",
      "action": "operation on the integration, e.g. send_email",
      "parameters": {"key": "value"},
      "dependsOn": ["ids of earlier steps"],
      "condition": {"expression": "...", "then": [steps], "else": [steps]}
    }
  ],
  "requiredApps": ["integration ids used by any step"]
}

## Rules
1. Step ids are unique. dependsOn may only name steps that appear earlier.
2. A delay step has a "duration" parameter: a positive integer of milliseconds.
3. A condition step has a non-empty "then" list.
4. Parameter values are strings, numbers or booleans. Use "{{path}}" for values
   known only at run time, e.g. "{{user.email}}".
5. Only use integrations from the available list.`
}

// UserPrompt builds the per-request prompt.
func UserPrompt(instruction string, available []string) string {
	var b strings.Builder
	b.WriteString("Create a workflow for the following request:\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", instruction)
	if len(available) > 0 {
		b.WriteString("Available integrations:\n")
		for _, app := range available {
			fmt.Fprintf(&b, "- %s\n", app)
		}
	} else {
		b.WriteString("Available integrations: none connected; use only delay, condition and webhook steps.\n")
	}
	return b.String()
}
