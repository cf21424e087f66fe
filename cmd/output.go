package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/folio/cmd/serve"
	"github.com/lepinkainen/folio/internal/breaker"
	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/fallback"
	"github.com/lepinkainen/folio/internal/health"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("254"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	nameStyle   = lipgloss.NewStyle().Width(14)
)

var originStyles = map[fallback.Origin]lipgloss.Style{
	fallback.OriginLocal:    okStyle,
	fallback.OriginBoth:     scoreStyle,
	fallback.OriginExternal: warnStyle,
}

func renderSearch(w io.Writer, resp *fallback.Response) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d results for %q (%s)",
		resp.TotalResults, resp.Query, resp.OriginSummary)))

	for i, r := range resp.Results {
		n := resp.Page*resp.Size + i + 1
		origin := originStyles[r.Origin].Render(string(r.Origin))
		fmt.Fprintf(w, "%3d. %s  %s  %s\n", n,
			titleStyle.Render(r.Title), origin, scoreStyle.Render(fmt.Sprintf("%.2f", r.Score)))

		var meta []string
		if r.Author != "" {
			meta = append(meta, r.Author)
		}
		if r.PublicationYear > 0 {
			meta = append(meta, fmt.Sprintf("%d", r.PublicationYear))
		}
		if r.ISBN != "" {
			meta = append(meta, "ISBN "+r.ISBN)
		}
		if r.PhysicalLocation != "" {
			meta = append(meta, "at "+r.PhysicalLocation)
		}
		if r.ExternalSource != "" {
			meta = append(meta, "via "+r.ExternalSource)
		}
		if len(meta) > 0 {
			fmt.Fprintf(w, "     %s\n", metaStyle.Render(strings.Join(meta, " · ")))
		}
	}

	for _, s := range resp.Sources {
		line := fmt.Sprintf("%s %s", nameStyle.Render(s.Source), outcomeStyle(s.Outcome).Render(string(s.Outcome)))
		if s.Error != "" {
			line += " " + metaStyle.Render(s.Error)
		}
		fmt.Fprintln(w, line)
	}
	if resp.HasMore {
		fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("more results on page %d", resp.Page+1)))
	}
}

func outcomeStyle(o fallback.Outcome) lipgloss.Style {
	switch o {
	case fallback.OutcomeOK, fallback.OutcomeCached:
		return okStyle
	case fallback.OutcomeFailed, fallback.OutcomeTimeout, fallback.OutcomeAbandoned:
		return errStyle
	default:
		return warnStyle
	}
}

func renderHealth(w io.Writer, hr serve.HealthResponse) {
	fmt.Fprintln(w, headerStyle.Render("External sources: ")+statusStyle(hr.Status).Render(string(hr.Status)))
	for _, s := range hr.Sources {
		line := fmt.Sprintf("%s %s  failures %d  tokens %.1f/%d",
			nameStyle.Render(s.Name), stateStyle(s.State).Render(s.State),
			s.ConsecutiveFailures, s.Tokens, s.Burst)
		if !s.OpenedAt.IsZero() {
			line += metaStyle.Render("  opened " + s.OpenedAt.Format(time.RFC3339))
		}
		fmt.Fprintln(w, line)
	}
}

func statusStyle(s health.Status) lipgloss.Style {
	switch s {
	case health.StatusHealthy:
		return okStyle
	case health.StatusDegraded:
		return warnStyle
	default:
		return errStyle
	}
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case breaker.Closed.String():
		return okStyle
	case breaker.HalfOpen.String():
		return warnStyle
	default:
		return errStyle
	}
}

func renderPing(w io.Writer, name string, err error, elapsed time.Duration) {
	if err != nil {
		fmt.Fprintf(w, "%s %s %s\n", nameStyle.Render(name), errStyle.Render("FAIL"), metaStyle.Render(err.Error()))
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", nameStyle.Render(name), okStyle.Render("OK"),
		metaStyle.Render(elapsed.Round(time.Millisecond).String()))
}

func renderImport(w io.Writer, file string, res catalog.UpsertResult, unreadable int) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Imported"), file)
	fmt.Fprintf(w, "  inserted %s  updated %s  skipped %s\n",
		okStyle.Render(fmt.Sprint(res.Inserted)),
		scoreStyle.Render(fmt.Sprint(res.Updated)),
		warnStyle.Render(fmt.Sprint(res.Skipped+unreadable)))
}
