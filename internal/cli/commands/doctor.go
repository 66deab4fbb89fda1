package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/leapstack-labs/vectorflow/internal/cli/config"
	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format  string // Output format: text, json
	Timeout time.Duration
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a project health check",
		Long: `Check that a VectorFlow project is ready to edit and run pipelines.

The doctor command reports:
- Configuration: config file and secrets file
- Node types: registry file and the secrets each node type needs
- Storage: the state database opens and migrates
- Services: configured runner and validator endpoints respond
- Pipelines: every pipelines/**/*.json file is runnable

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  vectorflow doctor

  # Output as JSON
  vectorflow doctor --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 3*time.Second, "Timeout for service checks")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Root      string `json:"root"`
	Config    string `json:"config,omitempty"`
	NodeTypes int    `json:"node_types"`
	Pipelines int    `json:"pipelines"`
	Runner    string `json:"runner"`
	Validator string `json:"validator"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func (h *HealthCheck) issue(status, detail string) {
	h.IssueCount++
	h.Details = append(h.Details, detail)
	if h.Status != "error" {
		h.Status = status
	}
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg
	r := cc.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	root := cfg.ProjectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	summary := ProjectSummary{
		Root:      root,
		Config:    config.GetConfigFileUsed(),
		Runner:    orDefault(cfg.Runner.URL, "simulator"),
		Validator: orDefault(cfg.Validator.URL, "local"),
	}

	var checks []HealthCheck

	// Configuration
	cf01 := HealthCheck{RuleID: "CF01", Name: "Config file", Group: "configuration", Status: "pass"}
	if summary.Config == "" {
		cf01.issue("warn", "no vectorflow.yaml found; using defaults")
	}
	cf02 := HealthCheck{RuleID: "CF02", Name: "Secrets file", Group: "configuration", Status: "pass"}
	if cfg.EnvFile != "" {
		if _, err := os.Stat(cfg.EnvFile); err != nil {
			cf02.issue("warn", fmt.Sprintf("%s not found", cfg.EnvFile))
		}
	}
	checks = append(checks, cf01, cf02)

	// Node types
	nt01 := HealthCheck{RuleID: "NT01", Name: "Node type registry", Group: "node types", Status: "pass"}
	reg, err := cc.Registry()
	if err != nil {
		nt01.issue("error", err.Error())
		reg = registry.New()
	}
	summary.NodeTypes = reg.Count()
	nt02 := HealthCheck{RuleID: "NT02", Name: "Node type secrets", Group: "node types", Status: "pass"}
	for _, nt := range reg.List() {
		if nt.Secret == "" {
			continue
		}
		if cfg.Runner.Secrets[nt.Secret] == "" {
			nt02.issue("warn", fmt.Sprintf("%s nodes need %s", nt.Type, nt.Secret))
		}
	}
	checks = append(checks, nt01, nt02)

	// Storage
	st01 := HealthCheck{RuleID: "ST01", Name: "State database", Group: "storage", Status: "pass"}
	stores, err := cc.OpenStores(cmd.Context())
	if err != nil {
		st01.issue("error", err.Error())
	} else {
		if _, err := stores.Pipelines.ListPipelines(cmd.Context()); err != nil {
			st01.issue("error", err.Error())
		}
		_ = stores.Close()
	}
	checks = append(checks, st01)

	// Services
	sv01 := HealthCheck{RuleID: "SV01", Name: "Runner endpoint", Group: "services", Status: "pass"}
	if cfg.Runner.URL != "" {
		if err := probe(cmd.Context(), cfg.Runner.URL, opts.Timeout); err != nil {
			sv01.issue("error", err.Error())
		}
	}
	sv02 := HealthCheck{RuleID: "SV02", Name: "Validator endpoint", Group: "services", Status: "pass"}
	if cfg.Validator.URL != "" {
		if err := probe(cmd.Context(), cfg.Validator.URL, opts.Timeout); err != nil {
			sv02.issue("error", err.Error())
		}
	}
	checks = append(checks, sv01, sv02)

	// Pipelines
	pl01 := HealthCheck{RuleID: "PL01", Name: "Runnable pipelines", Group: "pipelines", Status: "pass"}
	files, _ := doublestar.FilepathGlob(filepath.Join(root, "pipelines", "**", "*.json"), doublestar.WithFilesOnly())
	summary.Pipelines = len(files)
	checker := cc.Checker(reg)
	for _, path := range files {
		rel, _ := filepath.Rel(root, path)
		p, err := readPipeline(cmd, path)
		if err != nil {
			pl01.issue("error", fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		v, err := checker.Check(cmd.Context(), core.Graph{Nodes: p.Nodes, Edges: p.Edges}, pipelineName(p, path))
		if err != nil {
			pl01.issue("error", fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if !v.Runnable() {
			pl01.issue("warn", fmt.Sprintf("%s is not runnable", rel))
		}
	}
	checks = append(checks, pl01)

	out := buildDoctorOutput(summary, checks)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// probe reports whether anything answers HTTP at url.
func probe(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("invalid URL %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", url, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s responded %s", url, resp.Status)
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func buildDoctorOutput(summary ProjectSummary, checks []HealthCheck) *DoctorOutput {
	issues := 0
	for _, c := range checks {
		issues += c.IssueCount
	}

	// Sort health checks by group then by rule ID
	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		return checks[i].RuleID < checks[j].RuleID
	})

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks, summary.Pipelines),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issues,
	}
}

// calculateHealthScore computes a health score from 0-100.
// Errors cost twice as much as warnings; with more pipelines each
// individual issue has less impact.
func calculateHealthScore(checks []HealthCheck, pipelineCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if pipelineCount > 10 {
		basePenalty = 3.0
	}
	if pipelineCount > 50 {
		basePenalty = 2.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}

		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "CF01":
		return "Run 'vectorflow init' to create a vectorflow.yaml"
	case "CF02":
		return "Create a .env file with the API keys your pipelines use"
	case "NT01":
		return "Fix the YAML in server.registry_file; the server keeps the built-in catalog until it parses"
	case "NT02":
		return "Add the missing keys to .env or runner.secrets before running those nodes"
	case "ST01":
		return "Check state_path is writable, or point it at another location"
	case "SV01":
		return "Start the execution service or clear runner.url to use the simulator"
	case "SV02":
		return "Start the validation service or clear validator.url to validate locally"
	case "PL01":
		return "Run 'vectorflow validate pipelines/**/*.json' for details"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	// Header
	r.Println("")
	r.Println(styles.Header1.Render("VectorFlow Project Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	// Project Summary
	r.Println(styles.Header2.Render("Project Summary"))
	r.Printf("   Root: %s\n", out.Summary.Root)
	r.Printf("   Node types: %d | Pipelines: %d\n", out.Summary.NodeTypes, out.Summary.Pipelines)
	r.Printf("   Runner: %s | Validator: %s\n", out.Summary.Runner, out.Summary.Validator)
	r.Println("")

	// Health Checks grouped by category
	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.StatusFailed.String()
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show first 3 details for issues
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	// Health Score
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	// Recommendations
	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# VectorFlow Project Health Report")
	r.Println("")

	// Project Summary
	r.Println("## Project Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Root", out.Summary.Root))
	r.Println(output.FormatKeyValue("Node types", fmt.Sprint(out.Summary.NodeTypes)))
	r.Println(output.FormatKeyValue("Pipelines", fmt.Sprint(out.Summary.Pipelines)))
	r.Println(output.FormatKeyValue("Runner", out.Summary.Runner))
	r.Println(output.FormatKeyValue("Validator", out.Summary.Validator))
	r.Println("")

	// Health Checks
	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s: %s", status, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	// Health Score
	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	// Recommendations
	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
