package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/comercia-app/comercia/internal/sales/orders"
	"github.com/comercia-app/comercia/internal/shared"
)

// AuditPort records audit entries; satisfied by shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service applies customer payments atomically across the customer balance,
// the payment log, the income ledger, and the targeted order.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ApplyPayment runs the reconciliation transaction. The customer row stays
// locked FOR UPDATE until commit, so concurrent payments against the same
// customer serialize; later contenders observe the committed balances.
//
// Order of operations inside the transaction:
//  1. lock + load customer; load order with lines when targeted
//  2. validate amount against order remaining balance and customer debt
//  3. apply the debt-then-credit rule to the customer balances
//  4. insert the payment record with balanceAfter = new debt
//  5. post income (category "abono"), deduplicated per
//     (invoiceNumber, companyID) with order-link backfill
//  6. recompute the order's paid amount over all its payments and derive
//     its payment status
//
// Any error rolls back every write; partial application is never visible.
func (s *Service) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*Payment, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, input.Amount)
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}

	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomerForUpdate(ctx, input.CustomerID)
		if err != nil {
			return err
		}

		var order *orders.Order
		var orderTotal decimal.Decimal
		if input.OrderID != nil {
			order, err = tx.GetOrderWithLines(ctx, *input.OrderID)
			if err != nil {
				return err
			}
			if order.CustomerID == nil || *order.CustomerID != customer.ID {
				return fmt.Errorf("%w: order %s", ErrOrderCustomerMismatch, order.Code)
			}

			orderTotal = orders.OrderTotal(orders.GroupLines(order.Lines))
			priorPaid, err := tx.SumOrderPayments(ctx, order.ID)
			if err != nil {
				return err
			}
			remaining := orderTotal.Sub(priorPaid)
			if input.Amount.GreaterThan(remaining) {
				return fmt.Errorf("%w: remaining %s, got %s", ErrAmountExceedsOrderBalance, remaining, input.Amount)
			}
			if input.Amount.GreaterThan(customer.Debt) {
				return fmt.Errorf("%w: debt %s, got %s", ErrAmountExceedsDebt, customer.Debt, input.Amount)
			}
		}

		newDebt, newCredit := applyBalances(customer.Debt, customer.Credit, input.Amount)
		if err := tx.UpdateCustomerBalance(ctx, customer.ID, newDebt, newCredit); err != nil {
			return err
		}

		payment = Payment{
			CompanyID:    customer.CompanyID,
			CustomerID:   customer.ID,
			OrderID:      input.OrderID,
			Amount:       input.Amount,
			Method:       input.Method,
			Note:         input.Note,
			Evidence:     input.Evidence,
			BalanceAfter: newDebt,
			PaidAt:       paidAt,
		}
		payment.ID, err = tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}

		if err := s.postIncome(ctx, tx, customer, order, input.Amount, paidAt); err != nil {
			return err
		}

		if order != nil {
			paidSum, err := tx.SumOrderPayments(ctx, order.ID)
			if err != nil {
				return err
			}
			status := orders.PaymentStatusDebt
			if paidSum.GreaterThanOrEqual(orderTotal) {
				status = orders.PaymentStatusPaid
			}
			if err := tx.UpdateOrderPaymentState(ctx, order.ID, paidSum, newDebt, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "payment.apply",
			Entity:   "payment",
			EntityID: strconv.FormatInt(payment.ID, 10),
			Meta: map[string]any{
				"customer_id":   payment.CustomerID,
				"amount":        payment.Amount.String(),
				"balance_after": payment.BalanceAfter.String(),
			},
		}); err != nil {
			s.logger.Warn("audit apply payment", slog.Any("error", err))
		}
	}

	return &payment, nil
}

// postIncome records revenue for the payment. Order-linked payments carry
// the order code as invoice number and are posted at most once per
// (invoiceNumber, companyID); a pre-existing entry without an order link
// gets the link backfilled instead. Payments without an invoice number
// always post fresh.
func (s *Service) postIncome(ctx context.Context, tx TxRepository, customer CustomerAccount, order *orders.Order, amount decimal.Decimal, paidAt time.Time) error {
	entry := IncomeEntry{
		CompanyID:  customer.CompanyID,
		CustomerID: &customer.ID,
		Category:   IncomeCategoryInstallment,
		Amount:     amount,
		Date:       paidAt,
	}
	if order == nil {
		_, err := tx.InsertIncome(ctx, entry)
		return err
	}

	entry.OrderID = &order.ID
	entry.InvoiceNumber = &order.Code

	existing, err := tx.FindIncomeForUpdate(ctx, order.Code, customer.CompanyID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.OrderID == nil {
			return tx.LinkIncomeToOrder(ctx, existing.ID, order.ID)
		}
		return nil
	}
	_, err = tx.InsertIncome(ctx, entry)
	return err
}

// ListPayments returns a customer's payment history, newest first.
func (s *Service) ListPayments(ctx context.Context, customerID int64, limit, offset int) ([]Payment, error) {
	return s.repo.ListPayments(ctx, customerID, limit, offset)
}

// applyBalances implements the debt-then-credit rule: the payment clears
// debt first; any excess becomes prepaid credit. Both results stay
// non-negative and at most one is non-zero afterwards when they start that
// way.
func applyBalances(debt, credit, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if amount.LessThanOrEqual(debt) {
		return debt.Sub(amount), credit
	}
	return decimal.Zero, credit.Add(amount.Sub(debt))
}
