package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/mmynk/ledger/internal/ledger"
	"github.com/mmynk/ledger/internal/models"
	"github.com/mmynk/ledger/internal/render"
)

// errNoInvoices is returned when a payment is started on an empty ledger.
var errNoInvoices = errors.New("there are no invoices to process payments")

// transcriptLimit caps how many blocks of output the shell keeps on screen.
const transcriptLimit = 200

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive invoice and payment shell",
		Long:  "Create invoices, process payments and inspect the ledger from an interactive menu.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}
}

func runShell(cmd *cobra.Command, opts *rootOptions) error {
	svc, m, store, err := newService(opts.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.cfg.MetricsAddr != "" {
		stop, err := startMetricsServer(opts.cfg.MetricsAddr, m)
		if err != nil {
			return err
		}
		defer stop()
	}

	in := &inputReader{Reader: cmd.InOrStdin()}
	p := tea.NewProgram(
		newShellModel(ctx, svc, newRenderer(opts)),
		tea.WithInput(in.source()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	in.onEOF = func() { p.Send(inputClosedMsg{}) }

	if _, err := p.Run(); err != nil {
		// Canceled by SIGINT/SIGTERM through the command context.
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("shell failed: %w", err)
	}
	return nil
}

// inputClosedMsg reports that the shell's input reached EOF.
type inputClosedMsg struct{}

// inputReader tells the program when piped or scripted input runs out.
// Terminals are passed through untouched so bubbletea can switch them to
// raw mode; there Ctrl+D ends the shell instead.
type inputReader struct {
	io.Reader
	once  sync.Once
	onEOF func()
}

func (r *inputReader) source() io.Reader {
	if f, ok := r.Reader.(*os.File); ok && term.IsTerminal(f.Fd()) {
		return f
	}
	return r
}

func (r *inputReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if errors.Is(err, io.EOF) && r.onEOF != nil {
		r.once.Do(r.onEOF)
	}
	return n, err
}

type shellState int

const (
	stateMenu shellState = iota
	stateInvoiceAmount
	statePayee
	stateInvoiceIndex
	stateTransactionAmount
	stateMoreTransactions
	statePendingIndex
	stateConfirmExecute
)

type shellAction struct {
	render.Action
	run func(m *shellModel) tea.Cmd
}

// shellModel is the interactive menu. Every answer is typed on one line and
// submitted with enter; what the shell printed so far stays above the prompt.
type shellModel struct {
	ctx     context.Context
	svc     *ledger.Service
	r       *render.Renderer
	actions []shellAction

	state      shellState
	input      string
	transcript []string
	quitting   bool

	// Payment being assembled or confirmed.
	payee       string
	invoices    []*models.Invoice
	allocations []models.Allocation
	invoice     int
	pending     []*models.Payment
	paymentID   string
}

func newShellModel(ctx context.Context, svc *ledger.Service, r *render.Renderer) shellModel {
	m := shellModel{
		ctx: ctx,
		svc: svc,
		r:   r,
		actions: []shellAction{
			{render.Action{Key: "0", Description: "Create a new invoice"}, (*shellModel).createInvoice},
			{render.Action{Key: "1", Description: "Process a payment"}, (*shellModel).processPayment},
			{render.Action{Key: "2", Description: "Show invoices"}, (*shellModel).showInvoices},
			{render.Action{Key: "3", Description: "Show payments"}, (*shellModel).showPayments},
			{render.Action{Key: "4", Description: "Execute a pending payment"}, (*shellModel).executePending},
			{render.Action{Key: "5", Description: "Show summary"}, (*shellModel).showSummary},
			{render.Action{Key: "q", Description: "Quit"}, (*shellModel).quit},
		},
	}
	m.showMenu()
	return m
}

func (m shellModel) Init() tea.Cmd {
	return nil
}

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}

	switch msg := msg.(type) {
	case inputClosedMsg:
		return m, m.quit()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, m.quit()
		case tea.KeyEnter, tea.KeyCtrlJ:
			text := m.input
			m.print(fmt.Sprintf("%s: %s", m.prompt(), text))
			m.input = ""
			return m, m.submit(strings.TrimSpace(text))
		case tea.KeyBackspace:
			if r := []rune(m.input); len(r) > 0 {
				m.input = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.input += " "
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}

func (m shellModel) View() string {
	b := &strings.Builder{}
	for _, block := range m.transcript {
		fmt.Fprintln(b, block)
	}
	if m.quitting {
		// The renderer clears the last line on exit.
		return b.String()
	}
	fmt.Fprintf(b, "%s: %s", m.prompt(), m.input)
	return b.String()
}

func (m *shellModel) prompt() string {
	switch m.state {
	case stateInvoiceAmount:
		return "Invoice amount"
	case statePayee:
		return "Payee name"
	case stateInvoiceIndex:
		return "For what invoice do you want to process a payment (index)?"
	case stateTransactionAmount:
		return "How much is being paid towards that invoice?"
	case stateMoreTransactions:
		return "Is that all? [y/n]"
	case statePendingIndex:
		return "Which payment do you want to execute (index)?"
	case stateConfirmExecute:
		return "Are you sure you want to execute this payment? [y/n]"
	default:
		keys := make([]string, len(m.actions))
		for i, a := range m.actions {
			keys[i] = a.Key
		}
		return fmt.Sprintf("What do you want to do? Select an action ID [%s]", strings.Join(keys, "/"))
	}
}

// submit handles one line of input for the current state.
func (m *shellModel) submit(text string) tea.Cmd {
	switch m.state {
	case stateMenu:
		for _, a := range m.actions {
			if a.Key == text {
				return a.run(m)
			}
		}
		m.print("Please select one of the available options.")

	case stateInvoiceAmount:
		amount, ok := m.parseFloat(text)
		if !ok {
			return nil
		}
		invoice, err := m.svc.CreateInvoice(m.ctx, amount)
		if err != nil {
			m.fail(err)
			return nil
		}
		m.print(render.Info(fmt.Sprintf("Created invoice %s for %s", render.ShortID(invoice.ID), m.r.Money(invoice.Amount))))
		m.showMenu()

	case statePayee:
		m.payee = text
		m.print(m.r.Invoices(m.invoices))
		m.state = stateInvoiceIndex

	case stateInvoiceIndex:
		index, ok := m.parseIndex(text, len(m.invoices))
		if !ok {
			return nil
		}
		m.invoice = index
		m.state = stateTransactionAmount

	case stateTransactionAmount:
		amount, ok := m.parseFloat(text)
		if !ok {
			return nil
		}
		m.allocations = append(m.allocations, models.Allocation{InvoiceID: m.invoices[m.invoice].ID, Amount: amount})
		m.state = stateMoreTransactions

	case stateMoreTransactions:
		done, ok := m.parseYesNo(text)
		if !ok {
			return nil
		}
		if !done {
			m.print(m.r.Invoices(m.invoices))
			m.state = stateInvoiceIndex
			return nil
		}
		payment, err := m.svc.CreatePayment(m.ctx, m.payee, m.allocations)
		if err != nil {
			m.fail(err)
			return nil
		}
		m.print(render.Info("New payment created!"))
		m.print(m.r.Payment(payment, m.invoices))
		m.paymentID = payment.ID
		m.state = stateConfirmExecute

	case statePendingIndex:
		index, ok := m.parseIndex(text, len(m.pending))
		if !ok {
			return nil
		}
		m.paymentID = m.pending[index].ID
		m.state = stateConfirmExecute

	case stateConfirmExecute:
		ok, valid := m.parseYesNo(text)
		if !valid {
			return nil
		}
		if !ok {
			m.print("Payment processing cancelled! It stays pending.")
			m.showMenu()
			return nil
		}
		m.execute()
	}
	return nil
}

func (m *shellModel) createInvoice() tea.Cmd {
	m.state = stateInvoiceAmount
	return nil
}

func (m *shellModel) processPayment() tea.Cmd {
	invoices, err := m.svc.ListInvoices(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	if len(invoices) == 0 {
		m.fail(errNoInvoices)
		return nil
	}
	m.invoices = invoices
	m.allocations = nil
	m.state = statePayee
	return nil
}

func (m *shellModel) executePending() tea.Cmd {
	payments, err := m.svc.ListPayments(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.pending = nil
	for _, p := range payments {
		if p.Status == models.PaymentStatusCreated {
			m.pending = append(m.pending, p)
		}
	}
	if len(m.pending) == 0 {
		m.print("There are no pending payments.")
		m.showMenu()
		return nil
	}

	invoices, err := m.svc.ListInvoices(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.invoices = invoices
	m.print(m.r.Payments(m.pending, invoices))
	m.state = statePendingIndex
	return nil
}

// execute settles the selected payment. A failed payment is shown with its
// failure reason before the error.
func (m *shellModel) execute() {
	payment, err := m.svc.ExecutePayment(m.ctx, m.paymentID)
	if err != nil {
		if payment != nil {
			m.print(m.r.Payment(payment, m.invoices))
		}
		m.fail(err)
		return
	}
	m.print(render.Info(fmt.Sprintf("Payment %s executed!", render.ShortID(payment.ID))))
	m.showMenu()
}

func (m *shellModel) showInvoices() tea.Cmd {
	invoices, err := m.svc.ListInvoices(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.print(m.r.Invoices(invoices))
	m.showMenu()
	return nil
}

func (m *shellModel) showPayments() tea.Cmd {
	payments, err := m.svc.ListPayments(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	invoices, err := m.svc.ListInvoices(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.print(m.r.Payments(payments, invoices))
	m.showMenu()
	return nil
}

func (m *shellModel) showSummary() tea.Cmd {
	summary, err := m.svc.Summary(m.ctx)
	if err != nil {
		m.fail(err)
		return nil
	}
	m.print(m.r.Summary(summary))
	m.showMenu()
	return nil
}

func (m *shellModel) quit() tea.Cmd {
	m.print("You've exited the system. Thanks for using it!")
	m.quitting = true
	return tea.Quit
}

func (m *shellModel) showMenu() {
	menu := make([]render.Action, len(m.actions))
	for i, a := range m.actions {
		menu[i] = a.Action
	}
	m.print(m.r.Actions(menu))
	m.state = stateMenu
}

// fail reports an action error and goes back to the menu.
func (m *shellModel) fail(err error) {
	m.print(render.Error(err))
	m.showMenu()
}

func (m *shellModel) print(block string) {
	m.transcript = append(m.transcript, block)
	if n := len(m.transcript); n > transcriptLimit {
		m.transcript = m.transcript[n-transcriptLimit:]
	}
}

func (m *shellModel) parseFloat(text string) (float64, bool) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		m.print("Please enter a valid number.")
		return 0, false
	}
	return v, true
}

func (m *shellModel) parseIndex(text string, n int) (int, bool) {
	v, err := strconv.Atoi(text)
	if err != nil || v < 0 || v >= n {
		m.print(fmt.Sprintf("Please enter an index between 0 and %d.", n-1))
		return 0, false
	}
	return v, true
}

func (m *shellModel) parseYesNo(text string) (yes, ok bool) {
	switch strings.ToLower(text) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	m.print("Please enter y or n.")
	return false, false
}
