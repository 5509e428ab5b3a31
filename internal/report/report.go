// Package report renders a valuated dashboard as markdown and as styled
// terminal output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/valuation"
)

// FormatMoney formats amount in the currency's display convention. Unknown
// currency codes fall back to "<amount> <code>".
func FormatMoney(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), code).Display()
}

// Markdown renders holdings, totals by asset type and the latest history
// bucket of d.
func Markdown(d valuation.Dashboard, at time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Portfolio on %s\n\n", at.Format(domain.DateLayout))
	if d.Demo {
		b.WriteString("> Demo portfolio. Add an operation to start tracking your own.\n\n")
	}
	if len(d.Holdings) == 0 {
		b.WriteString("No holdings.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**Net worth:** %s\n\n", FormatMoney(d.Total, d.Pivot))

	b.WriteString("## Holdings\n\n")
	fmt.Fprintf(&b, "| Ticker | Type | Quantity | Price | Value (USD) | Value (%s) |\n", d.Pivot)
	b.WriteString("| --- | --- | ---: | ---: | ---: | ---: |\n")
	for _, h := range d.Holdings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			h.Ticker, h.Type, h.Quantity.String(),
			FormatMoney(h.Price, h.Currency),
			FormatMoney(h.ValueUSD, domain.USD),
			FormatMoney(h.ValuePivot, d.Pivot))
	}

	b.WriteString("\n## By asset type\n\n")
	b.WriteString("| Type | Value | Share |\n")
	b.WriteString("| --- | ---: | ---: |\n")
	for _, t := range d.Totals {
		share := decimal.Zero
		if !d.Total.IsZero() {
			share = t.ValuePivot.Div(d.Total).Mul(decimal.NewFromInt(100))
		}
		fmt.Fprintf(&b, "| %s | %s | %s%% |\n", t.Type, FormatMoney(t.ValuePivot, d.Pivot), share.StringFixed(1))
	}

	if d.History != nil && len(d.History.Labels) > 0 {
		last := len(d.History.Labels) - 1
		fmt.Fprintf(&b, "\n## History\n\n%d periods from %s to %s.\n",
			len(d.History.Labels), d.History.Labels[0], d.History.Labels[last])
	}
	return b.String()
}

// Terminal renders markdown for a terminal of the given width.
func Terminal(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return out, nil
}
