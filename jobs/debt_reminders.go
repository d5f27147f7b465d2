package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// TaskDebtReminderScan triggers the nightly scan for indebted customers.
	TaskDebtReminderScan = "ledger:debt_reminder_scan"
)

// DebtReminderScanPayload carries scheduling metadata.
type DebtReminderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewDebtReminderScanTask constructs the scheduled scan task.
func NewDebtReminderScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(DebtReminderScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDebtReminderScan, body, asynq.Queue(QueueDefault)), nil
}

// Debtor is one customer with an outstanding balance.
type Debtor struct {
	CustomerID int64
	CompanyID  int64
	Name       string
	Email      string
	Debt       decimal.Decimal
}

// DebtorSource lists customers with outstanding debt.
type DebtorSource interface {
	ListDebtors(ctx context.Context) ([]Debtor, error)
}

// EmailEnqueuer hands reminder emails to the task queue; satisfied by
// *Client.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DebtReminderScanner finds customers with outstanding debt and enqueues a
// reminder email per customer, fanning out per company.
type DebtReminderScanner struct {
	debtors DebtorSource
	client  EmailEnqueuer
	logger  *slog.Logger
}

// NewDebtReminderScanner constructs the scanner over the customers table.
func NewDebtReminderScanner(pool *pgxpool.Pool, client *Client, logger *slog.Logger) *DebtReminderScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebtReminderScanner{debtors: &pgDebtorSource{pool: pool}, client: client, logger: logger}
}

// Handle processes TaskDebtReminderScan tasks.
func (s *DebtReminderScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DebtReminderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	debtors, err := s.debtors.ListDebtors(ctx)
	if err != nil {
		return err
	}
	byCompany := GroupDebtorsByCompany(debtors)

	g, ctx := errgroup.WithContext(ctx)
	for companyID, group := range byCompany {
		companyID, group := companyID, group
		g.Go(func() error {
			for _, debtor := range group {
				payload := ReminderEmail(debtor)
				if _, err := s.client.EnqueueSendEmail(ctx, payload); err != nil {
					return fmt.Errorf("enqueue reminder company=%d customer=%d: %w", companyID, debtor.CustomerID, err)
				}
			}
			s.logger.Info("debt reminders enqueued",
				slog.Int64("company_id", companyID),
				slog.Int("count", len(group)))
			return nil
		})
	}
	return g.Wait()
}

type pgDebtorSource struct {
	pool *pgxpool.Pool
}

func (s *pgDebtorSource) ListDebtors(ctx context.Context) ([]Debtor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, name, email, debt
		FROM customers
		WHERE is_active AND debt > 0 AND email <> ''
		ORDER BY company_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debtors []Debtor
	for rows.Next() {
		var d Debtor
		if err := rows.Scan(&d.CustomerID, &d.CompanyID, &d.Name, &d.Email, &d.Debt); err != nil {
			return nil, err
		}
		debtors = append(debtors, d)
	}
	return debtors, rows.Err()
}

// GroupDebtorsByCompany buckets debtors per company id.
func GroupDebtorsByCompany(debtors []Debtor) map[int64][]Debtor {
	out := make(map[int64][]Debtor)
	for _, d := range debtors {
		out[d.CompanyID] = append(out[d.CompanyID], d)
	}
	return out
}

// ReminderEmail builds the reminder message for one debtor.
func ReminderEmail(d Debtor) SendEmailPayload {
	return SendEmailPayload{
		To:      d.Email,
		Subject: "Payment reminder",
		Body: fmt.Sprintf("Hello %s, you have an outstanding balance of $%s. Please settle it at your earliest convenience.",
			d.Name, d.Debt.StringFixed(2)),
	}
}
