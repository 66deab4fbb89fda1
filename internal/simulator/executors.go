package simulator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/vectorflow/internal/dag"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

type nodeContext struct {
	ctx     context.Context
	service *Service
	runID   string
	node    core.Node
	graph   *dag.Graph
	results map[string]any
	env     map[string]string
	emit    Emit
}

func (c *nodeContext) str(key, fallback string) string {
	if v, ok := c.node.Data[key]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fallback
}

func (c *nodeContext) wait(d time.Duration) error {
	return c.service.sleep(c.ctx, d)
}

// pause scales a nominal per-type latency by the configured step delay.
func (c *nodeContext) pause(nominal time.Duration) error {
	return c.wait(time.Duration(float64(nominal) * float64(c.service.stepDelay) / float64(300*time.Millisecond)))
}

func (c *nodeContext) chunk(text string) error {
	return c.emit(core.Event{Type: core.EventNodeChunk, RunID: c.runID, NodeID: c.node.ID, Chunk: text})
}

// secret returns the named env entry or a failure with the given label.
func (c *nodeContext) secret(key, missing string) (string, error) {
	if v := strings.TrimSpace(c.env[key]); v != "" {
		return v, nil
	}
	return "", &failure{message: missing}
}

type outcome struct {
	result  any
	metrics core.NodeMetrics
}

// failure is a node error reported to the client as an error frame.
type failure struct {
	message string
}

func (f *failure) Error() string { return f.message }

type executor func(*nodeContext) (outcome, error)

// modelCost prices a call at $0.005 per 1k input and $0.015 per 1k output tokens.
func modelCost(in, out int64) float64 {
	return (float64(in)*0.005 + float64(out)*0.015) / 1000
}

func builtinExecutors() map[string]executor {
	return map[string]executor{
		"customInput": func(c *nodeContext) (outcome, error) {
			return outcome{result: c.str("inputName", "input_"+c.node.ID)}, nil
		},
		"customOutput": func(c *nodeContext) (outcome, error) {
			var val any = "output"
			if parents := c.graph.GetParents(c.node.ID); len(parents) > 0 {
				if r, ok := c.results[parents[0]]; ok {
					val = r
				}
			}
			return outcome{result: val}, nil
		},
		"llm": func(c *nodeContext) (outcome, error) {
			model := c.str("model", "gpt-4o")
			words := []string{"This", "is", "a", "simulated", "streaming", "response", "from", model,
				"demonstrating", "live", "token-by-token", "feedback."}
			for _, w := range words {
				if err := c.chunk(w + " "); err != nil {
					return outcome{}, err
				}
				if err := c.pause(80 * time.Millisecond); err != nil {
					return outcome{}, err
				}
			}
			in, out := int64(50), int64(len(words))
			return outcome{
				result:  strings.Join(words, " "),
				metrics: core.NodeMetrics{TokensIn: in, TokensOut: out, Cost: modelCost(in, out)},
			}, nil
		},
		"embedder": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("OPENAI_API_KEY", "Embedder Error: OPENAI_API_KEY missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(600 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			dims, err := strconv.Atoi(c.str("dimensions", "1536"))
			if err != nil {
				dims = 1536
			}
			return outcome{
				result:  fmt.Sprintf("[vector:%dd from %s]", dims, c.str("embeddingModel", "text-embedding-3-small")),
				metrics: core.NodeMetrics{TokensIn: 20, Cost: 0.00002},
			}, nil
		},
		"imageGen": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("OPENAI_API_KEY", "Image Gen Error: OPENAI_API_KEY missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(2 * time.Second); err != nil {
				return outcome{}, err
			}
			cost := 0.02
			if strings.Contains(c.str("imageModel", "dall-e-3"), "dall-e-3") {
				cost = 0.04
			}
			return outcome{
				result:  fmt.Sprintf("https://images.example.invalid/simulated/%s.png", c.node.ID),
				metrics: core.NodeMetrics{Cost: cost},
			}, nil
		},
		"classifier": func(c *nodeContext) (outcome, error) {
			if err := c.pause(700 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			label := "unknown"
			for _, l := range strings.Split(c.str("labels", "positive, negative, neutral"), ",") {
				if l = strings.TrimSpace(l); l != "" {
					label = l
					break
				}
			}
			return outcome{
				result:  map[string]any{"label": label, "score": 0.92},
				metrics: core.NodeMetrics{TokensIn: 30, Cost: 0.0005},
			}, nil
		},
		"summarizer": func(c *nodeContext) (outcome, error) {
			if err := c.pause(time.Second); err != nil {
				return outcome{}, err
			}
			in, out := int64(300), int64(60)
			return outcome{
				result: fmt.Sprintf("[%s summary generated by %s] The document discusses AI pipeline orchestration and its practical applications in modern workflows.",
					c.str("summaryStyle", "Concise"), c.str("summaryModel", "gpt-4o")),
				metrics: core.NodeMetrics{TokensIn: in, TokensOut: out, Cost: modelCost(in, out)},
			}, nil
		},
		"text": func(c *nodeContext) (outcome, error) {
			text, _ := c.node.Data["text"].(string)
			return outcome{result: text}, nil
		},
		"transform": placeholder(400 * time.Millisecond),
		"join":      placeholder(400 * time.Millisecond),
		"split":     placeholder(400 * time.Millisecond),
		"jsonParser": func(c *nodeContext) (outcome, error) {
			if err := c.pause(200 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("[%s: %s] → simulated_value",
				c.str("parseMode", "Extract Key"), c.str("jsonPath", "key"))}, nil
		},
		"csvParser": func(c *nodeContext) (outcome, error) {
			if err := c.pause(300 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: map[string]any{
				"rows":    [][]string{{"col1", "col2"}, {"val1", "val2"}},
				"headers": []string{"col1", "col2"},
			}}, nil
		},
		"calculator": func(c *nodeContext) (outcome, error) {
			if err := c.pause(100 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("calc(%s) = 42", c.str("expression", "a + b"))}, nil
		},
		"filter": func(c *nodeContext) (outcome, error) {
			if err := c.pause(300 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: "filtered_result"}, nil
		},
		"conditional": func(c *nodeContext) (outcome, error) {
			if err := c.pause(200 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: map[string]any{"branch": "true", "condition": c.str("condition", "true")}}, nil
		},
		"loop": func(c *nodeContext) (outcome, error) {
			if err := c.pause(500 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			n, err := strconv.Atoi(c.str("maxIterations", "3"))
			if err != nil {
				n = 3
			}
			items := make([]string, 0, min(max(n, 0), 5))
			for i := 0; i < min(n, 5); i++ {
				items = append(items, fmt.Sprintf("item_%d", i))
			}
			return outcome{result: items}, nil
		},
		"delay": func(c *nodeContext) (outcome, error) {
			raw := c.str("delaySeconds", "1")
			unit := c.str("delayUnit", "Seconds")
			seconds, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				seconds = 1
			}
			switch unit {
			case "Milliseconds":
				seconds /= 1000
			case "Minutes":
				seconds *= 60
			}
			// Simulated waits are capped at five seconds.
			if err := c.wait(min(time.Duration(seconds*float64(time.Second)), 5*time.Second)); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("Delayed %s %s", raw, unit)}, nil
		},
		"api": func(c *nodeContext) (outcome, error) {
			if err := c.pause(800 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: map[string]any{
				"status": 200,
				"method": c.str("method", "GET"),
				"url":    c.str("url", "https://api.example.com"),
				"body":   map[string]any{"simulated": true},
			}}, nil
		},
		"vectorDb": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("PINECONE_API_KEY", "Vector DB Error: PINECONE_API_KEY missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(800 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{
				result: fmt.Sprintf("Vector [%s] on index '%s' returned 5 results.",
					c.str("action", "Query"), c.str("indexName", "default")),
				metrics: core.NodeMetrics{TokensIn: 120, Cost: 0.00005},
			}, nil
		},
		"webScraper": func(c *nodeContext) (outcome, error) {
			if err := c.pause(1200 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{
				result:  fmt.Sprintf("Scraped content from %s\n\n# Header\nThis is simulated markdown content.", c.str("url", "https://unknown.com")),
				metrics: core.NodeMetrics{Cost: 0.001},
			}, nil
		},
		"slackWebhook": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("SLACK_WEBHOOK_URL", "Webhook Error: SLACK_WEBHOOK_URL missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(500 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: "Message dispatched to Slack successfully."}, nil
		},
		"email": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("SENDGRID_API_KEY", "Email Error: SENDGRID_API_KEY missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(600 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("Email sent to '%s' with subject '%s'.",
				c.str("emailTo", "unknown@example.com"), c.str("emailSubject", "Pipeline Notification"))}, nil
		},
		"github": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("GITHUB_TOKEN", "GitHub Error: GitHub Token missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(900 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("GitHub [%s] on repo '%s' completed. ID: #%s",
				c.str("ghAction", "Create Issue"), c.str("ghRepo", "owner/repo"), uuid.NewString()[:6])}, nil
		},
		"googleSheets": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("GOOGLE_SHEETS_API_KEY", "Google Sheets Error: API Key missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(700 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			return outcome{result: fmt.Sprintf("Sheets [%s] on '%s' succeeded.",
				c.str("sheetsAction", "Append Row"), c.str("spreadsheetId", "unknown"))}, nil
		},
		"notion": func(c *nodeContext) (outcome, error) {
			if _, err := c.secret("NOTION_TOKEN", "Notion Error: Notion Token missing in settings."); err != nil {
				return outcome{}, err
			}
			if err := c.pause(800 * time.Millisecond); err != nil {
				return outcome{}, err
			}
			db := c.str("notionDbId", "unknown")
			return outcome{result: fmt.Sprintf("Notion [%s] on database '%s...' completed.",
				c.str("notionAction", "Append Page"), db[:min(8, len(db))])}, nil
		},
	}
}

func placeholder(latency time.Duration) executor {
	return func(c *nodeContext) (outcome, error) {
		if err := c.pause(latency); err != nil {
			return outcome{}, err
		}
		return outcome{result: c.node.Type + "_result"}, nil
	}
}

func fallbackExecutor(c *nodeContext) (outcome, error) {
	if err := c.pause(400 * time.Millisecond); err != nil {
		return outcome{}, err
	}
	return outcome{
		result:  c.node.Type + "_result",
		metrics: core.NodeMetrics{TokensIn: 5, Cost: 0.0001},
	}, nil
}
