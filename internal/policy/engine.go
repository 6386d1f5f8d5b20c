package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/provider"
)

// Engine scores transcripts against policy templates through an Evaluator.
type Engine struct {
	eval               provider.Evaluator
	logger             *slog.Logger
	model              string
	violationThreshold float64
}

func NewEngine(eval provider.Evaluator, model string, violationThreshold float64, logger *slog.Logger) *Engine {
	return &Engine{
		eval:               eval,
		logger:             logger,
		model:              model,
		violationThreshold: violationThreshold,
	}
}

type modelResponse struct {
	CategoryScores []CategoryScore `json:"category_scores"`
	Violations     []Violation     `json:"violations"`
	Confidence     float64         `json:"confidence"`
	CustomerTone   json.RawMessage `json:"customer_tone"`
}

// Evaluate scores a transcript against a template. The template is
// validated before any provider call; a bad template never costs tokens.
func (e *Engine) Evaluate(ctx context.Context, recordingID uuid.UUID, transcript string, tpl Template) (*Evaluation, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	criteriaJSON, err := json.MarshalIndent(tpl.Criteria, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal criteria: %w", err)
	}
	prompt := fmt.Sprintf(evaluationUserPrompt, tpl.Name, criteriaJSON, transcript)

	e.logger.Info("evaluating transcript",
		"recording_id", recordingID,
		"template", tpl.Name,
		"criteria", len(tpl.Criteria),
		"transcript_len", len(transcript),
	)

	raw, err := e.eval.Evaluate(ctx, provider.EvalRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate transcript: %w", err)
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		e.logger.Error("failed to parse evaluation response",
			"error", err,
			"raw", raw,
		)
		return nil, &provider.Error{Kind: provider.KindPermanent, Op: "parse evaluation", Err: err}
	}

	scores, err := e.normalizeScores(recordingID, resp.CategoryScores, tpl)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		ID:             uuid.New(),
		RecordingID:    recordingID,
		TemplateID:     tpl.ID,
		CategoryScores: scores,
		OverallScore:   Overall(scores, tpl.Criteria),
		Violations:     e.mergeViolations(resp.Violations, scores, tpl),
		Confidence:     clampConfidence(resp.Confidence),
		CustomerTone:   resp.CustomerTone,
		Model:          e.model,
		CreatedAt:      time.Now().UTC(),
	}

	e.logger.Info("evaluation complete",
		"recording_id", recordingID,
		"overall", eval.OverallScore,
		"violations", len(eval.Violations),
		"confidence", eval.Confidence,
	)

	return eval, nil
}

// normalizeScores checks coverage against the template and clamps every
// score into [0,100]. Scores for categories the template does not know
// are dropped.
func (e *Engine) normalizeScores(recordingID uuid.UUID, scores []CategoryScore, tpl Template) ([]CategoryScore, error) {
	byName := make(map[string]CategoryScore, len(scores))
	for _, s := range scores {
		byName[s.CategoryName] = s
	}

	out := make([]CategoryScore, 0, len(tpl.Criteria))
	for _, c := range tpl.Criteria {
		s, ok := byName[c.Name]
		if !ok {
			return nil, &provider.Error{
				Kind: provider.KindPermanent,
				Op:   "parse evaluation",
				Err:  fmt.Errorf("model output missing score for criterion %q", c.Name),
			}
		}
		if s.Score < 0 || s.Score > 100 {
			e.logger.Warn("clamping out-of-range score",
				"recording_id", recordingID,
				"category", c.Name,
				"score", s.Score,
			)
			s.Score = clampScore(s.Score)
		}
		out = append(out, s)
	}

	if extra := len(scores) - len(out); extra > 0 {
		e.logger.Warn("dropping scores for unknown categories",
			"recording_id", recordingID,
			"dropped", extra,
		)
	}
	return out, nil
}

// mergeViolations combines model-flagged violations with threshold
// violations so each category appears at most once. The model's detail
// wins when both flag the same category.
func (e *Engine) mergeViolations(flagged []Violation, scores []CategoryScore, tpl Template) []Violation {
	known := make(map[string]bool, len(tpl.Criteria))
	for _, c := range tpl.Criteria {
		known[c.Name] = true
	}

	out := make([]Violation, 0, len(flagged))
	have := make(map[string]bool)
	for _, v := range flagged {
		if !known[v.CategoryName] || have[v.CategoryName] {
			continue
		}
		switch v.Severity {
		case SeverityMinor, SeverityMajor, SeverityCritical:
		default:
			v.Severity = SeverityMajor
		}
		have[v.CategoryName] = true
		out = append(out, v)
	}

	for _, s := range scores {
		if s.Score >= e.violationThreshold || have[s.CategoryName] {
			continue
		}
		have[s.CategoryName] = true
		out = append(out, Violation{
			CategoryName: s.CategoryName,
			Severity:     SeverityMajor,
			Detail:       fmt.Sprintf("scored %.1f, below the policy threshold of %.1f", s.Score, e.violationThreshold),
		})
	}
	return out
}
