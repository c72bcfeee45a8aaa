// Package render draws ledger state as terminal tables.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mmynk/ledger/internal/calculator"
	"github.com/mmynk/ledger/internal/models"
)

var (
	accent  = lipgloss.Color("#06B6D4") // cyan
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(fg).Padding(0, 1)
	indexStyle  = lipgloss.NewStyle().Foreground(accent).Padding(0, 1).Align(lipgloss.Right)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	passStyle   = lipgloss.NewStyle().Foreground(success)
	failStyle   = lipgloss.NewStyle().Foreground(danger)
	warnStyle   = lipgloss.NewStyle().Foreground(warning)
)

const timeLayout = "2006-01-02 15:04:05"

// Action is one entry of the interactive menu.
type Action struct {
	Key         string
	Description string
}

// Renderer formats amounts with a currency symbol.
type Renderer struct {
	Currency string
}

// New creates a Renderer for the given currency symbol.
func New(currency string) *Renderer {
	return &Renderer{Currency: currency}
}

// Money formats an amount with two decimals.
func (r *Renderer) Money(amount float64) string {
	return fmt.Sprintf("%s%.2f", r.Currency, amount)
}

// Actions renders the interactive menu.
func (r *Renderer) Actions(actions []Action) string {
	rows := make([][]string, len(actions))
	for i, a := range actions {
		rows[i] = []string{a.Key, a.Description}
	}
	return titled("Actions", newTable([]string{"Action ID", "Description"}, rows))
}

// Invoices renders invoices with their list index, which the shell uses to
// pick invoices for a payment.
func (r *Renderer) Invoices(invoices []*models.Invoice) string {
	if len(invoices) == 0 {
		return titled("Invoices", dimStyle.Render("  No invoices yet."))
	}

	rows := make([][]string, len(invoices))
	for i, inv := range invoices {
		rows[i] = []string{
			strconv.Itoa(i),
			ShortID(inv.ID),
			r.Money(inv.Amount),
			r.Money(inv.Outstanding),
			paidLabel(inv),
			inv.CreatedAt.Local().Format(timeLayout),
		}
	}
	return titled("Invoices", newTable(
		[]string{"Index", "ID", "Amount", "Outstanding", "Paid", "Created"},
		rows,
	))
}

// Payments renders payments. Transaction targets are shown by invoice index
// when the invoice is in invoices, by short ID otherwise.
func (r *Renderer) Payments(payments []*models.Payment, invoices []*models.Invoice) string {
	if len(payments) == 0 {
		return titled("Payments", dimStyle.Render("  No payments yet."))
	}

	index := make(map[string]int, len(invoices))
	for i, inv := range invoices {
		index[inv.ID] = i
	}

	rows := make([][]string, len(payments))
	for i, p := range payments {
		rows[i] = []string{
			strconv.Itoa(i),
			ShortID(p.ID),
			p.Payee,
			r.transactions(p.Transactions, index),
			r.Money(p.Total()),
			statusLabel(p),
			p.CreatedAt.Local().Format(timeLayout),
		}
	}
	return titled("Payments", newTable(
		[]string{"Index", "ID", "Payee", "Transactions", "Total", "Status", "Created"},
		rows,
	))
}

// Payment renders a single payment, used to confirm it before execution.
func (r *Renderer) Payment(p *models.Payment, invoices []*models.Invoice) string {
	var b strings.Builder
	b.WriteString(r.Payments([]*models.Payment{p}, invoices))
	if p.FailureReason != "" {
		b.WriteString("\n" + failStyle.Render("  "+p.FailureReason))
	}
	return b.String()
}

// Summary renders aggregate ledger figures.
func (r *Renderer) Summary(s calculator.Summary) string {
	rows := [][]string{
		{"Invoices", strconv.Itoa(s.InvoiceCount)},
		{"Paid invoices", strconv.Itoa(s.PaidCount)},
		{"Total billed", r.Money(s.TotalBilled)},
		{"Total outstanding", r.Money(s.TotalOutstanding)},
		{"Total collected", r.Money(s.TotalCollected)},
		{"Payments", strconv.Itoa(s.PaymentCount)},
		{"Executed", strconv.Itoa(s.ExecutedCount)},
		{"Failed", strconv.Itoa(s.FailedCount)},
		{"Pending", strconv.Itoa(s.PendingCount)},
		{"Total settled", r.Money(s.TotalSettled)},
	}
	return titled("Summary", newTable([]string{"Metric", "Value"}, rows))
}

// Error renders an action error for the shell.
func Error(err error) string {
	return failStyle.Render(fmt.Sprintf("We've encountered an error while processing your action. Please, try again! Error: %q", err.Error()))
}

// Info renders a neutral status line.
func Info(msg string) string {
	return passStyle.Render(msg)
}

// ShortID returns the first 8 characters of a UUID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (r *Renderer) transactions(txs []models.Transaction, index map[string]int) string {
	if len(txs) == 0 {
		return dimStyle.Render("none")
	}
	parts := make([]string, len(txs))
	for i, t := range txs {
		target := ShortID(t.InvoiceID)
		if idx, ok := index[t.InvoiceID]; ok {
			target = "#" + strconv.Itoa(idx)
		}
		parts[i] = fmt.Sprintf("%s %s", target, r.Money(t.Amount))
	}
	return strings.Join(parts, "\n")
}

func paidLabel(inv *models.Invoice) string {
	if inv.IsPaid() {
		return passStyle.Render("yes")
	}
	return warnStyle.Render("no")
}

func statusLabel(p *models.Payment) string {
	switch p.Status {
	case models.PaymentStatusExecuted:
		label := passStyle.Render(string(p.Status))
		if p.ExecutedAt != nil {
			label += "\n" + dimStyle.Render(p.ExecutedAt.Local().Format(time.Kitchen))
		}
		return label
	case models.PaymentStatusFailed:
		return failStyle.Render(string(p.Status))
	default:
		return warnStyle.Render(string(p.Status))
	}
}

func newTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return indexStyle
			default:
				return cellStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

func titled(title, body string) string {
	return titleStyle.Render(title) + "\n" + body + "\n"
}
