package bundle

import (
	"fmt"
	"strings"

	"diagramforge/internal/cost"
	"diagramforge/internal/policy"
)

const (
	complianceReportPath = "POLICY_COMPLIANCE_REPORT.md"
	costReportPath       = "COST_OPTIMIZATION_REPORT.md"
	readmePath           = "README.md"
)

// Compose merges the generated files with the rendered compliance and cost
// reports plus a README into the final downloadable file set.
func Compose(generated *FileSet, report policy.Report, costReport cost.Report, environment string) (*FileSet, error) {
	out := NewFileSet()
	if err := out.Merge(generated); err != nil {
		return nil, err
	}
	if err := out.Add(complianceReportPath, []byte(RenderComplianceReport(report))); err != nil {
		return nil, err
	}
	if err := out.Add(costReportPath, []byte(RenderCostReport(costReport))); err != nil {
		return nil, err
	}
	if err := out.Add(readmePath, []byte(renderReadme(environment))); err != nil {
		return nil, err
	}
	return out, nil
}

// RenderComplianceReport renders the compliance result as markdown.
func RenderComplianceReport(report policy.Report) string {
	var b strings.Builder
	b.WriteString("# Policy Compliance Report\n\n")
	fmt.Fprintf(&b, "Environment: %s\n\n", report.Environment)
	fmt.Fprintf(&b, "- Compliant: %v\n", report.Compliant)
	fmt.Fprintf(&b, "- Compliance score: %d/100\n", report.Score)
	fmt.Fprintf(&b, "- Critical violations: %d\n", report.CriticalCount())
	fmt.Fprintf(&b, "- Fixes applied: %d\n", len(report.Fixes))
	if !report.Converged {
		b.WriteString("\n> Warning: the automated fix loop reached its iteration bound with violations outstanding. Review the items below manually.\n")
	}
	if len(report.Violations) > 0 {
		b.WriteString("\n## Outstanding Violations\n\n")
		b.WriteString("| Severity | Rule | Component | Description |\n")
		b.WriteString("|----------|------|-----------|-------------|\n")
		for _, v := range report.Violations {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", v.Severity, v.RuleID, v.ComponentID, v.Description)
		}
	}
	if len(report.Fixes) > 0 {
		b.WriteString("\n## Applied Fixes\n\n")
		for i, fix := range report.Fixes {
			fmt.Fprintf(&b, "%d. **%s** on `%s`: %s\n", i+1, fix.RuleID, fix.ComponentID, fix.Description)
		}
	}
	return b.String()
}

// RenderCostReport renders the optimization result as markdown.
func RenderCostReport(report cost.Report) string {
	var b strings.Builder
	b.WriteString("# Cost Optimization Report\n\n")
	fmt.Fprintf(&b, "Environment: %s\n", report.Environment)
	fmt.Fprintf(&b, "Framework: %s\n\n", report.FrameworkApplied)
	if report.EstimatedMonthlySavings != "" {
		fmt.Fprintf(&b, "Estimated monthly savings: **%s**\n\n", report.EstimatedMonthlySavings)
	}
	if len(report.Recommendations) == 0 {
		b.WriteString("No optimization opportunities were identified.\n")
		return b.String()
	}
	b.WriteString("## Recommendations\n\n")
	for i, rec := range report.Recommendations {
		fmt.Fprintf(&b, "%d. **%s**", i+1, rec.Type)
		if rec.Component != "" {
			fmt.Fprintf(&b, " (%s)", rec.Component)
		}
		fmt.Fprintf(&b, ": %s", rec.Description)
		if rec.EstimatedMonthlySavings != "" {
			fmt.Fprintf(&b, " - saves %s/month", rec.EstimatedMonthlySavings)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderReadme(environment string) string {
	var b strings.Builder
	b.WriteString("# Infrastructure Bundle\n\n")
	fmt.Fprintf(&b, "Generated by diagramforge for the **%s** environment.\n\n", environment)
	b.WriteString(`## Contents

- ` + "`bicep/`" + ` - infrastructure templates and parameter files
- ` + "`pipelines/`" + ` - deployment pipeline definitions
- ` + "`scripts/`" + ` - validation and deployment helpers
- ` + "`POLICY_COMPLIANCE_REPORT.md`" + ` - compliance findings and applied fixes
- ` + "`COST_OPTIMIZATION_REPORT.md`" + ` - sizing and pricing recommendations

## Deploying

Validate first, then deploy:

` + "```powershell" + `
./scripts/validate.ps1
./scripts/deploy.ps1
` + "```" + `

Review the compliance report before deploying to shared environments.
`)
	return b.String()
}
