package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	httpserver "github.com/fyrsmithlabs/contentd/internal/http"
	"github.com/fyrsmithlabs/contentd/internal/review"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// field renders one "label: value" line.
func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label+":")), valueStyle.Render(value))
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func fmtMS(v float64) string {
	switch {
	case v <= 0:
		return "-"
	case v < 1:
		return strconv.FormatFloat(v*1000, 'f', 0, 64) + "µs"
	case v < 1000:
		return strconv.FormatFloat(v, 'f', 1, 64) + "ms"
	default:
		return strconv.FormatFloat(v/1000, 'f', 2, 64) + "s"
	}
}

// rateStyle colours a success percentage.
func rateStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 95:
		return healthyStyle
	case pct >= 80:
		return warningStyle
	default:
		return errorStyle
	}
}

func renderContent(w io.Writer, c httpserver.ContentResponse) {
	fmt.Fprintln(w, headerStyle.Render("CONTENT "+c.ID))
	field(w, "Title", c.Title)
	field(w, "Status", string(c.Status))
	if c.Category != "" {
		field(w, "Category", c.Category)
	}
	if c.ScheduledFor != nil {
		field(w, "Scheduled for", fmtTime(*c.ScheduledFor))
	}
	if c.PublishedAt != nil {
		field(w, "Published at", fmtTime(*c.PublishedAt))
	}
	by := c.ModifiedBy
	if by == "" {
		by = "-"
	}
	field(w, "Modified", fmtTime(c.ModifiedAt)+" by "+by)
}

func renderPublish(w io.Writer, p httpserver.PublishResponse) {
	renderContent(w, p.Content)
	fmt.Fprintln(w, sectionStyle.Render("Publication"))
	strategy := p.Strategy
	if p.FallbackUsed {
		strategy += " " + warningStyle.Render("(fallback)")
	}
	field(w, "Strategy", strategy)
	field(w, "Duration", fmtMS(p.DurationMS))
	if p.EstimateMS > 0 {
		field(w, "Estimate", fmtMS(p.EstimateMS))
	}
	for _, a := range p.Attempts {
		mark := healthyStyle.Render("✓")
		detail := ""
		if a.Error != "" {
			mark = errorStyle.Render("✗")
			detail = " " + dimStyle.Render(a.Error)
		}
		fmt.Fprintf(w, "    %s %s %s%s\n", mark, a.Strategy, dimStyle.Render(a.Stage+" "+fmtMS(a.DurationMS)), detail)
	}
}

func caseStatusStyle(s review.CaseStatus) lipgloss.Style {
	switch s {
	case review.StatusApproved, review.StatusPublished:
		return healthyStyle
	case review.StatusRejected:
		return errorStyle
	case review.StatusWithdrawn:
		return dimStyle
	default:
		return warningStyle
	}
}

func renderCase(w io.Writer, c *review.Case) {
	fmt.Fprintln(w, headerStyle.Render("REVIEW "+c.ContentID))
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", "Status:")), caseStatusStyle(c.Status).Render(string(c.Status)))
	if c.Category != "" {
		field(w, "Category", c.Category)
	}
	field(w, "Submitter", c.Submitter.ID)
	field(w, "Submitted", fmtTime(c.SubmittedAt))
	field(w, "Approvals", fmt.Sprintf("%d/%d", c.Approvals(), c.RequiredApprovals))
	if deadline, ok := c.Deadline(); ok {
		field(w, "Deadline", fmtTime(deadline))
	}

	if len(c.Reviewers) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Reviewers"))
		for _, r := range c.Reviewers {
			d, ok := c.Decisions[r]
			if !ok {
				d = review.DecisionPending
			}
			fmt.Fprintf(w, "    %-16s %s\n", r, decisionStyle(d).Render(string(d)))
		}
	}
	if len(c.Comments) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Comments"))
		for _, cm := range c.Comments {
			fmt.Fprintf(w, "    %s %s %s\n", dimStyle.Render(fmtTime(cm.At)), labelStyle.Render(cm.AuthorID+":"), cm.Text)
		}
	}
}

func decisionStyle(d review.Decision) lipgloss.Style {
	switch d {
	case review.DecisionApproved:
		return healthyStyle
	case review.DecisionRejected:
		return errorStyle
	case review.DecisionNeedsRevision:
		return warningStyle
	default:
		return dimStyle
	}
}

func renderStrategies(w io.Writer, resp httpserver.StrategiesResponse) {
	mode := "auto selection"
	if !resp.AutoSelection {
		mode = "pinned to " + resp.Pinned
	}
	fmt.Fprintln(w, headerStyle.Render("STRATEGIES")+" "+dimStyle.Render(mode))

	if len(resp.Strategies) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no strategies registered"))
		return
	}

	rows := make([][]string, 0, len(resp.Strategies))
	rates := make([]float64, 0, len(resp.Strategies))
	for _, s := range resp.Strategies {
		var caps []string
		if s.Capabilities.SupportsBatch {
			caps = append(caps, "batch")
		}
		if s.Capabilities.SupportsRollback {
			caps = append(caps, "rollback")
		}
		sort.Strings(caps)
		rate := "-"
		if s.Usage.UsageCount > 0 {
			rate = strconv.FormatFloat(s.SuccessRate, 'f', 1, 64) + "%"
		}
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Priority),
			strconv.FormatInt(s.Usage.UsageCount, 10),
			rate,
			fmtMS(s.AvgMS),
			fmtMS(float64(s.Performance.P95Duration) / float64(time.Millisecond)),
			strings.Join(caps, ","),
		})
		rates = append(rates, s.SuccessRate)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers("NAME", "PRIORITY", "USES", "SUCCESS", "AVG", "P95", "CAPABILITIES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return cellStyle.Foreground(lipgloss.Color("51")).Bold(true)
			case col == 3 && row >= 0 && row < len(rates) && rows[row][3] != "-":
				return cellStyle.Inherit(rateStyle(rates[row]))
			case col == 0:
				return cellStyle.Inherit(valueStyle)
			default:
				return cellStyle
			}
		})
	fmt.Fprintln(w, t.Render())
}

func renderHealth(w io.Writer, h httpserver.HealthResponse) {
	mark := healthyStyle.Render("● " + h.Status)
	if h.Status != "ok" {
		mark = warningStyle.Render("● " + h.Status)
	}
	fmt.Fprintln(w, headerStyle.Render("CONTENTD")+" "+mark)
	field(w, "Scheduled", strconv.Itoa(h.Scheduled))
	field(w, "In review", strconv.Itoa(h.InReview))

	names := make([]string, 0, len(h.Services))
	for n := range h.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		st := h.Services[n]
		style := healthyStyle
		if st != "ok" {
			style = warningStyle
		}
		fmt.Fprintf(w, "    %-14s %s\n", n, style.Render(st))
	}
}
