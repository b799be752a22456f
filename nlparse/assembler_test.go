package nlparse

import (
	"errors"
	"testing"
)

func TestWorkflowName(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		want        string
	}{
		{"short", "send an email", "send an email"},
		{"exactly thirty", "abcdefghij abcdefghij abcdefgh", "abcdefghij abcdefghij abcdefgh"},
		{"long few words", "supercalifragilistic expialidocious!!", "supercalifragilistic expialidocious!!..."},
		{"many words", "Send an email to john@example.com, then create a GitHub issue", "Send an email to john@example.com,..."},
		{"collapses whitespace", "a   b\tc", "a b c"},
		{"empty", "", ""},
		{"non-ascii under limit", "发送邮件给团队成员然后发布消息", "发送邮件给团队成员然后发布消息"},
		{"non-ascii exactly thirty", "Überprüfe die Änderung morgen!", "Überprüfe die Änderung morgen!"},
		{"non-ascii over limit", "Écrire à l'équipe: réunion déplacée à demain matin", "Écrire à l'équipe: réunion déplacée..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workflowName(tt.instruction); got != tt.want {
				t.Errorf("workflowName(%q) = %q, want %q", tt.instruction, got, tt.want)
			}
		})
	}
}

func TestAssemble(t *testing.T) {
	d := Detection{
		Steps: []Step{
			{ID: "step_1", Type: StepAction, Name: "Send Email", App: "gmail", Action: "send_email"},
			{ID: "step_2", Type: StepAction, Name: "Post", App: "slack", Action: "send_message", DependsOn: []string{"step_1"}},
		},
		RequiredApps: []string{"gmail", "slack"},
	}
	wf, err := Assemble("email then slack", d)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if wf.Name != "email then slack" || wf.Description != "email then slack" {
		t.Errorf("unexpected envelope: name=%q description=%q", wf.Name, wf.Description)
	}
	if len(wf.Steps) != 2 || len(wf.RequiredApps) != 2 {
		t.Errorf("steps/apps not passed through: %+v", wf)
	}
	if wf.EstimatedDuration != nil {
		t.Error("estimated duration should never be populated")
	}
}

func TestAssemble_EmptyDetection(t *testing.T) {
	wf, err := Assemble("nothing to see", Detection{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if wf.Steps == nil || wf.RequiredApps == nil {
		t.Errorf("expected non-nil empty slices, got %#v", wf)
	}
}

func TestAssemble_InvariantViolations(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  error
	}{
		{
			name: "duplicate id",
			steps: []Step{
				{ID: "step_1", Type: StepAction},
				{ID: "step_1", Type: StepAction},
			},
			want: ErrDuplicateStepID,
		},
		{
			name: "forward dependency",
			steps: []Step{
				{ID: "step_1", Type: StepAction, DependsOn: []string{"step_2"}},
				{ID: "step_2", Type: StepAction},
			},
			want: ErrForwardDependency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble("x", Detection{Steps: tt.steps})
			var inv *InvariantError
			if !errors.As(err, &inv) {
				t.Fatalf("expected *InvariantError, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
