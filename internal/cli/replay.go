package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/ledger/internal/calculator"
	"github.com/mmynk/ledger/internal/models"
)

// scenario is the YAML input of the replay command.
//
//	invoices:
//	  - key: rent
//	    amount: 100
//	payments:
//	  - payee: John Doe
//	    transactions:
//	      - invoice: rent
//	        amount: 50
//
// Invoices without a key are referenced by their position ("0", "1", ...).
type scenario struct {
	Invoices []scenarioInvoice `yaml:"invoices"`
	Payments []scenarioPayment `yaml:"payments"`
}

type scenarioInvoice struct {
	Key    string  `yaml:"key"`
	Amount float64 `yaml:"amount"`
}

type scenarioPayment struct {
	Payee        string                `yaml:"payee"`
	Pending      bool                  `yaml:"pending"` // create without executing
	Transactions []scenarioTransaction `yaml:"transactions"`
}

type scenarioTransaction struct {
	Invoice string  `yaml:"invoice"`
	Amount  float64 `yaml:"amount"`
}

// replayReport is the JSON output of the replay command.
type replayReport struct {
	Invoices []invoiceView      `json:"invoices"`
	Payments []paymentView      `json:"payments"`
	Summary  calculator.Summary `json:"summary"`
}

type invoiceView struct {
	Key         string    `json:"key"`
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Outstanding float64   `json:"outstanding"`
	Paid        bool      `json:"paid"`
	CreatedAt   time.Time `json:"created_at"`
}

type paymentView struct {
	ID            string            `json:"id"`
	Payee         string            `json:"payee"`
	Status        string            `json:"status"`
	Transactions  []transactionView `json:"transactions"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ExecutedAt    *time.Time        `json:"executed_at,omitempty"`
}

type transactionView struct {
	InvoiceID string  `json:"invoice_id"`
	Amount    float64 `json:"amount"`
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Run invoices and payments from a YAML scenario",
		Long: "Create the invoices of a scenario file, then create and execute its payments " +
			"in order, and print the resulting ledger. The run is too short to scrape, so " +
			"--metrics-addr is ignored here.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(args[0])
			if err != nil {
				return err
			}

			svc, _, store, err := newService(opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			ids := make(map[string]string, len(sc.Invoices))
			keys := make(map[string]string, len(sc.Invoices))
			for i, inv := range sc.Invoices {
				created, err := svc.CreateInvoice(ctx, inv.Amount)
				if err != nil {
					return fmt.Errorf("invoice %d: %w", i, err)
				}
				key := invoiceKey(i, inv)
				ids[key] = created.ID
				keys[created.ID] = key
			}

			var failures int
			for i, p := range sc.Payments {
				allocations := make([]models.Allocation, len(p.Transactions))
				for j, t := range p.Transactions {
					allocations[j] = models.Allocation{InvoiceID: ids[t.Invoice], Amount: t.Amount}
				}
				payment, err := svc.CreatePayment(ctx, p.Payee, allocations)
				if err != nil {
					return fmt.Errorf("payment %d: %w", i, err)
				}
				if p.Pending {
					continue
				}
				if _, err := svc.ExecutePayment(ctx, payment.ID); err != nil {
					if strict {
						return fmt.Errorf("payment %d failed: %w", i, err)
					}
					failures++
					slog.Warn("Replay payment failed", "index", i, "payee", p.Payee, "error", err)
				}
			}

			invoices, err := svc.ListInvoices(ctx)
			if err != nil {
				return err
			}
			payments, err := svc.ListPayments(ctx)
			if err != nil {
				return err
			}
			summary, err := svc.Summary(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return renderReplayJSON(cmd, buildReport(invoices, payments, summary, keys))
			}

			r := newRenderer(opts)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, r.Invoices(invoices))
			fmt.Fprintln(out, r.Payments(payments, invoices))
			fmt.Fprintln(out, r.Summary(summary))
			if failures > 0 {
				fmt.Fprintf(out, "%d payment(s) failed\n", failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the resulting ledger as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Stop at the first failed payment and exit non-zero")

	return cmd
}

// loadScenario parses path and checks that every transaction references a
// declared invoice.
func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var sc scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	known := make(map[string]bool, len(sc.Invoices))
	for i, inv := range sc.Invoices {
		key := invoiceKey(i, inv)
		if known[key] {
			return nil, fmt.Errorf("duplicate invoice key %q", key)
		}
		known[key] = true
	}
	for i, p := range sc.Payments {
		for j, t := range p.Transactions {
			if !known[t.Invoice] {
				return nil, fmt.Errorf("payment %d transaction %d: unknown invoice %q", i, j, t.Invoice)
			}
		}
	}
	return &sc, nil
}

func invoiceKey(i int, inv scenarioInvoice) string {
	if inv.Key != "" {
		return inv.Key
	}
	return strconv.Itoa(i)
}

func buildReport(invoices []*models.Invoice, payments []*models.Payment, summary calculator.Summary, keys map[string]string) replayReport {
	report := replayReport{
		Invoices: make([]invoiceView, len(invoices)),
		Payments: make([]paymentView, len(payments)),
		Summary:  summary,
	}
	for i, inv := range invoices {
		report.Invoices[i] = invoiceView{
			Key:         keys[inv.ID],
			ID:          inv.ID,
			Amount:      inv.Amount,
			Outstanding: inv.Outstanding,
			Paid:        inv.IsPaid(),
			CreatedAt:   inv.CreatedAt,
		}
	}
	for i, p := range payments {
		txs := make([]transactionView, len(p.Transactions))
		for j, t := range p.Transactions {
			txs[j] = transactionView{InvoiceID: t.InvoiceID, Amount: t.Amount}
		}
		report.Payments[i] = paymentView{
			ID:            p.ID,
			Payee:         p.Payee,
			Status:        string(p.Status),
			Transactions:  txs,
			FailureReason: p.FailureReason,
			CreatedAt:     p.CreatedAt,
			ExecutedAt:    p.ExecutedAt,
		}
	}
	return report
}

func renderReplayJSON(cmd *cobra.Command, report replayReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
