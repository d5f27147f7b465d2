package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/comercia-app/comercia/internal/sales/orders"
	"github.com/comercia-app/comercia/internal/shared"
)

type memState struct {
	customers     map[int64]CustomerAccount
	orders        map[int64]*orders.Order
	payments      []Payment
	incomes       []IncomeEntry
	nextPaymentID int64
	nextIncomeID  int64

	failIncomeInsert bool
}

func (s *memState) clone() *memState {
	cp := &memState{
		customers:        make(map[int64]CustomerAccount, len(s.customers)),
		orders:           make(map[int64]*orders.Order, len(s.orders)),
		payments:         append([]Payment(nil), s.payments...),
		incomes:          append([]IncomeEntry(nil), s.incomes...),
		nextPaymentID:    s.nextPaymentID,
		nextIncomeID:     s.nextIncomeID,
		failIncomeInsert: s.failIncomeInsert,
	}
	for id, c := range s.customers {
		cp.customers[id] = c
	}
	for id, o := range s.orders {
		oc := *o
		oc.Lines = append([]orders.OrderLine(nil), o.Lines...)
		cp.orders[id] = &oc
	}
	return cp
}

type memoryLedgerRepo struct {
	state *memState
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{state: &memState{
		customers:     make(map[int64]CustomerAccount),
		orders:        make(map[int64]*orders.Order),
		nextPaymentID: 1,
		nextIncomeID:  1,
	}}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	work := r.state.clone()
	if err := fn(ctx, &memoryLedgerTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryLedgerRepo) ListPayments(_ context.Context, customerID int64, _, _ int) ([]Payment, error) {
	var out []Payment
	for _, p := range r.state.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryLedgerTx struct {
	state *memState
}

func (t *memoryLedgerTx) GetCustomerForUpdate(_ context.Context, id int64) (CustomerAccount, error) {
	c, ok := t.state.customers[id]
	if !ok {
		return CustomerAccount{}, shared.ErrNotFound
	}
	return c, nil
}

func (t *memoryLedgerTx) UpdateCustomerBalance(_ context.Context, id int64, debt, credit decimal.Decimal) error {
	c, ok := t.state.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Debt = debt
	c.Credit = credit
	t.state.customers[id] = c
	return nil
}

func (t *memoryLedgerTx) GetOrderWithLines(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	oc := *o
	oc.Lines = append([]orders.OrderLine(nil), o.Lines...)
	return &oc, nil
}

func (t *memoryLedgerTx) SumOrderPayments(_ context.Context, orderID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range t.state.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (t *memoryLedgerTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = t.state.nextPaymentID
	t.state.nextPaymentID++
	t.state.payments = append(t.state.payments, p)
	return p.ID, nil
}

func (t *memoryLedgerTx) FindIncomeForUpdate(_ context.Context, invoiceNumber string, companyID int64) (*IncomeEntry, error) {
	for i := range t.state.incomes {
		entry := t.state.incomes[i]
		if entry.CompanyID == companyID && entry.InvoiceNumber != nil && *entry.InvoiceNumber == invoiceNumber {
			cp := entry
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryLedgerTx) LinkIncomeToOrder(_ context.Context, incomeID, orderID int64) error {
	for i := range t.state.incomes {
		if t.state.incomes[i].ID == incomeID && t.state.incomes[i].OrderID == nil {
			t.state.incomes[i].OrderID = &orderID
		}
	}
	return nil
}

func (t *memoryLedgerTx) InsertIncome(_ context.Context, entry IncomeEntry) (int64, error) {
	if t.state.failIncomeInsert {
		return 0, errors.New("income storage unavailable")
	}
	entry.ID = t.state.nextIncomeID
	t.state.nextIncomeID++
	t.state.incomes = append(t.state.incomes, entry)
	return entry.ID, nil
}

func (t *memoryLedgerTx) UpdateOrderPaymentState(_ context.Context, orderID int64, paid, balanceAfter decimal.Decimal, status orders.PaymentStatus) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.PaidAmount = paid
	o.BalanceAfter = balanceAfter
	o.PaymentStatus = status
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, shared.AuditLog) error { return nil }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedCustomer(repo *memoryLedgerRepo, id int64, debt, credit string) {
	repo.state.customers[id] = CustomerAccount{
		ID:        id,
		CompanyID: 1,
		Debt:      money(debt),
		Credit:    money(credit),
	}
}

func seedOrder(repo *memoryLedgerRepo, id, customerID int64, code string, unitPrice string, qty int64) {
	cid := customerID
	repo.state.orders[id] = &orders.Order{
		ID:            id,
		Code:          code,
		CompanyID:     1,
		CustomerID:    &cid,
		Status:        orders.OrderStatusInProcess,
		PaidAmount:    decimal.Zero,
		BalanceAfter:  decimal.Zero,
		PaymentStatus: orders.PaymentStatusPending,
		Lines: []orders.OrderLine{
			{ProductID: 1, ProductName: "Widget", Quantity: qty, UnitPrice: money(unitPrice)},
		},
	}
}

func newTestService(repo *memoryLedgerRepo) *Service {
	svc := NewService(repo, nopAudit{}, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestApplyPaymentDebtThenCredit(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	svc := newTestService(repo)

	payment, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("150"),
	})
	require.NoError(t, err)

	customer := repo.state.customers[1]
	require.True(t, customer.Debt.IsZero(), "debt: %s", customer.Debt)
	require.True(t, customer.Credit.Equal(money("50")), "credit: %s", customer.Credit)
	require.True(t, payment.BalanceAfter.IsZero())

	// no invoice number: income always posts fresh
	require.Len(t, repo.state.incomes, 1)
	income := repo.state.incomes[0]
	require.Equal(t, IncomeCategoryInstallment, income.Category)
	require.Nil(t, income.InvoiceNumber)
	require.True(t, income.Amount.Equal(money("150")))
}

func TestApplyPaymentPartialDebt(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	svc := newTestService(repo)

	payment, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("30"),
	})
	require.NoError(t, err)

	customer := repo.state.customers[1]
	require.True(t, customer.Debt.Equal(money("70")))
	require.True(t, customer.Credit.IsZero())
	require.True(t, payment.BalanceAfter.Equal(money("70")))
}

func TestApplyPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	svc := newTestService(repo)

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
			CustomerID: 1,
			Amount:     money(amount),
		})
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
	require.Empty(t, repo.state.payments)
}

func TestApplyPaymentCustomerNotFound(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 99,
		Amount:     money("10"),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApplyPaymentOrderBalanceCap(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "500", "0")
	seedOrder(repo, 7, 1, "ORD-2603-0007", "200", 1)
	orderID := int64(7)
	// 150 already paid against the order
	repo.state.payments = append(repo.state.payments, Payment{
		ID: 1, CompanyID: 1, CustomerID: 1, OrderID: &orderID, Amount: money("150"),
	})
	repo.state.nextPaymentID = 2
	before := repo.state.clone()
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("60"),
		OrderID:    &orderID,
	})
	require.ErrorIs(t, err, ErrAmountExceedsOrderBalance)

	// nothing may have been written
	require.Equal(t, before.customers, repo.state.customers)
	require.Equal(t, before.payments, repo.state.payments)
	require.Equal(t, before.incomes, repo.state.incomes)
	require.Equal(t, before.orders[7], repo.state.orders[7])
}

func TestApplyPaymentOrderExceedsDebt(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "50", "0")
	seedOrder(repo, 7, 1, "ORD-2603-0007", "200", 1)
	orderID := int64(7)
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("80"),
		OrderID:    &orderID,
	})
	require.ErrorIs(t, err, ErrAmountExceedsDebt)
}

func TestApplyPaymentOrderCustomerMismatch(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	seedCustomer(repo, 2, "100", "0")
	seedOrder(repo, 7, 2, "ORD-2603-0007", "100", 1)
	orderID := int64(7)
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("10"),
		OrderID:    &orderID,
	})
	require.ErrorIs(t, err, ErrOrderCustomerMismatch)
}

func TestApplyPaymentStatusProgression(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	seedOrder(repo, 7, 1, "ORD-2603-0007", "100", 1)
	orderID := int64(7)
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1, Amount: money("40"), OrderID: &orderID,
	})
	require.NoError(t, err)

	order := repo.state.orders[7]
	require.True(t, order.PaidAmount.Equal(money("40")))
	require.Equal(t, orders.PaymentStatusDebt, order.PaymentStatus)
	require.True(t, order.BalanceAfter.Equal(money("60")))

	_, err = svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1, Amount: money("60"), OrderID: &orderID,
	})
	require.NoError(t, err)

	order = repo.state.orders[7]
	require.True(t, order.PaidAmount.Equal(money("100")))
	require.Equal(t, orders.PaymentStatusPaid, order.PaymentStatus)
	require.True(t, order.BalanceAfter.IsZero())
	require.True(t, repo.state.customers[1].Debt.IsZero())
}

func TestApplyPaymentIncomeDedup(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	seedOrder(repo, 7, 1, "ORD-2603-0007", "100", 1)
	orderID := int64(7)
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1, Amount: money("40"), OrderID: &orderID,
	})
	require.NoError(t, err)
	_, err = svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1, Amount: money("60"), OrderID: &orderID,
	})
	require.NoError(t, err)

	// one entry per (invoiceNumber, companyID), regardless of payment count
	require.Len(t, repo.state.incomes, 1)
	require.Equal(t, "ORD-2603-0007", *repo.state.incomes[0].InvoiceNumber)
}

func TestApplyPaymentIncomeBackfill(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	seedOrder(repo, 7, 1, "ORD-2603-0007", "100", 1)
	orderID := int64(7)
	invoice := "ORD-2603-0007"
	// entry posted earlier through another path, without an order link
	repo.state.incomes = append(repo.state.incomes, IncomeEntry{
		ID: 1, CompanyID: 1, InvoiceNumber: &invoice,
		Category: IncomeCategoryInstallment, Amount: money("10"),
	})
	repo.state.nextIncomeID = 2
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1, Amount: money("40"), OrderID: &orderID,
	})
	require.NoError(t, err)

	require.Len(t, repo.state.incomes, 1)
	require.NotNil(t, repo.state.incomes[0].OrderID)
	require.Equal(t, int64(7), *repo.state.incomes[0].OrderID)
}

func TestApplyPaymentRollsBackOnIncomeFailure(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedCustomer(repo, 1, "100", "0")
	repo.state.failIncomeInsert = true
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		CustomerID: 1,
		Amount:     money("40"),
	})
	require.Error(t, err)

	// the balance update and the payment insert were rolled back
	require.True(t, repo.state.customers[1].Debt.Equal(money("100")))
	require.True(t, repo.state.customers[1].Credit.IsZero())
	require.Empty(t, repo.state.payments)
	require.Empty(t, repo.state.incomes)
}

func TestApplyBalances(t *testing.T) {
	cases := []struct {
		debt, credit, amount string
		wantDebt, wantCredit string
	}{
		{"100", "0", "30", "70", "0"},
		{"100", "0", "100", "0", "0"},
		{"100", "0", "150", "0", "50"},
		{"0", "20", "15", "0", "35"},
	}
	for _, tc := range cases {
		debt, credit := applyBalances(money(tc.debt), money(tc.credit), money(tc.amount))
		require.True(t, debt.Equal(money(tc.wantDebt)), "debt %s/%s/%s: got %s", tc.debt, tc.credit, tc.amount, debt)
		require.True(t, credit.Equal(money(tc.wantCredit)), "credit %s/%s/%s: got %s", tc.debt, tc.credit, tc.amount, credit)
	}
}
