package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/review"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Poster announces pending reviews in a Slack channel so reviewers can
// settle the easy ones with a reaction. It is optional everywhere it is
// used; a nil Poster means no notifications.
type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// SetTestTransport points the poster at a test server instead of Slack.
func (p *Poster) SetTestTransport(url string) {
	p.apiURL = url
}

// PostReviewSummary posts a pending review to the channel. Returns the
// message timestamp (ts), which reaction events refer back to.
func (p *Poster) PostReviewSummary(ctx context.Context, rev *review.HumanReview, eval *policy.Evaluation, fileName string) (string, error) {
	text := formatReviewMessage(rev, eval, fileName)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: confirm scores | :-1: reject (then correct via API)",
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted review to slack", "ts", slackResp.TS, "review_id", rev.ID)
	return slackResp.TS, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatReviewMessage(rev *review.HumanReview, eval *policy.Evaluation, fileName string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Review needed:* %s\n", fileName)
	fmt.Fprintf(&sb, "*Overall:* %.1f | *Confidence:* %.2f\n\n", eval.OverallScore, eval.Confidence)

	if len(eval.CategoryScores) > 0 {
		sb.WriteString("*Scores:*\n")
		for _, s := range eval.CategoryScores {
			fmt.Fprintf(&sb, "• %s: %.0f\n", s.CategoryName, s.Score)
		}
		sb.WriteString("\n")
	}

	if len(eval.Violations) > 0 {
		fmt.Fprintf(&sb, "*Violations: %d*\n", len(eval.Violations))
		for _, v := range eval.Violations {
			fmt.Fprintf(&sb, "• [%s] %s: %s\n", v.Severity, v.CategoryName, v.Detail)
		}
		sb.WriteString("\n")
	}

	if len(eval.CustomerTone) > 0 {
		fmt.Fprintf(&sb, "*Customer tone:* %s\n", string(eval.CustomerTone))
	}

	fmt.Fprintf(&sb, "_review %s_", rev.ID)
	return sb.String()
}
