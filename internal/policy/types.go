package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// weightTolerance is how far criterion weights may drift from summing to
// 100 before the template is rejected.
const weightTolerance = 0.01

// Violation severities.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// Template is a scoring rubric: weighted criteria an evaluation scores
// against. Weights must sum to 100.
type Template struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Criteria  []Criterion `json:"criteria"`
	CreatedAt time.Time   `json:"created_at"`
}

// Criterion is one weighted category in a template.
type Criterion struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Weight      float64       `json:"weight"`
	Levels      []RubricLevel `json:"levels,omitempty"`
}

// RubricLevel describes what a score band means for a criterion. Levels
// are optional guidance for the evaluator.
type RubricLevel struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// TemplateError is a configuration fault in a template. It is never
// retried: the template has to be fixed by hand.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string {
	return "invalid policy template: " + e.Reason
}

// Validate checks the template before any evaluation runs against it.
func (t Template) Validate() error {
	if t.Name == "" {
		return &TemplateError{Reason: "template has no name"}
	}
	if len(t.Criteria) == 0 {
		return &TemplateError{Reason: "template has no criteria"}
	}

	seen := make(map[string]bool, len(t.Criteria))
	sum := 0.0
	for _, c := range t.Criteria {
		if c.Name == "" {
			return &TemplateError{Reason: "criterion has no name"}
		}
		if seen[c.Name] {
			return &TemplateError{Reason: fmt.Sprintf("duplicate criterion %q", c.Name)}
		}
		seen[c.Name] = true

		if c.Weight <= 0 {
			return &TemplateError{Reason: fmt.Sprintf("criterion %q has non-positive weight %v", c.Name, c.Weight)}
		}
		sum += c.Weight

		for _, l := range c.Levels {
			if l.Min < 0 || l.Max > 100 || l.Min > l.Max {
				return &TemplateError{Reason: fmt.Sprintf("criterion %q has invalid rubric band [%v, %v]", c.Name, l.Min, l.Max)}
			}
		}
	}

	if math.Abs(sum-100) > weightTolerance {
		return &TemplateError{Reason: fmt.Sprintf("criterion weights sum to %v, want 100", sum)}
	}
	return nil
}

// Evaluation is the scored result of running a transcript against a
// template. The original evaluation is immutable once stored; human
// review never rewrites it.
type Evaluation struct {
	ID             uuid.UUID       `json:"id"`
	RecordingID    uuid.UUID       `json:"recording_id"`
	TemplateID     uuid.UUID       `json:"template_id"`
	CategoryScores []CategoryScore `json:"category_scores"`
	OverallScore   float64         `json:"overall_score"`
	Violations     []Violation     `json:"violations"`
	Confidence     float64         `json:"confidence"`
	CustomerTone   json.RawMessage `json:"customer_tone,omitempty"`
	Model          string          `json:"model"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CategoryScore is the 0-100 score for one criterion.
type CategoryScore struct {
	CategoryName string  `json:"category_name"`
	Score        float64 `json:"score"`
	Feedback     string  `json:"feedback"`
}

// Violation flags a category that fell below policy.
type Violation struct {
	CategoryName string `json:"category_name"`
	Severity     string `json:"severity"`
	Detail       string `json:"detail"`
}
