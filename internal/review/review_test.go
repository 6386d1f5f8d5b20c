package review

import (
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
)

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name string
		eval policy.Evaluation
		want bool
	}{
		{
			name: "clean high score stays automated",
			eval: policy.Evaluation{OverallScore: 88, Confidence: 0.9},
			want: false,
		},
		{
			name: "violation escalates",
			eval: policy.Evaluation{
				OverallScore: 88,
				Confidence:   0.9,
				Violations:   []policy.Violation{{CategoryName: "Resolution", Severity: policy.SeverityMajor}},
			},
			want: true,
		},
		{
			name: "low overall escalates",
			eval: policy.Evaluation{OverallScore: 55, Confidence: 0.9},
			want: true,
		},
		{
			name: "low confidence escalates",
			eval: policy.Evaluation{OverallScore: 88, Confidence: 0.3},
			want: true,
		},
		{
			name: "exactly at threshold stays automated",
			eval: policy.Evaluation{OverallScore: 70, Confidence: 0.6},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldEscalate(&tt.eval, 70, 0.6); got != tt.want {
				t.Errorf("ShouldEscalate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPending(t *testing.T) {
	eval := &policy.Evaluation{ID: uuid.New(), RecordingID: uuid.New()}

	r := NewPending(eval)

	if r.Status != StatusPending {
		t.Errorf("expected pending status, got %q", r.Status)
	}
	if r.ReviewerID != nil {
		t.Errorf("expected nil reviewer on a pending review, got %v", r.ReviewerID)
	}
	if r.EvaluationID != eval.ID {
		t.Errorf("expected evaluation id %s, got %s", eval.ID, r.EvaluationID)
	}
	if r.RecordingID != eval.RecordingID {
		t.Errorf("expected recording id %s, got %s", eval.RecordingID, r.RecordingID)
	}
	if r.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestValidOutcome(t *testing.T) {
	for _, ok := range []string{OutcomeConfirmed, OutcomeOverridden, OutcomeRejected} {
		if !ValidOutcome(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "pending", "approve", "CONFIRMED"} {
		if ValidOutcome(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
