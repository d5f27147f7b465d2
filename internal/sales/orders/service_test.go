package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/comercia-app/comercia/internal/catalog/products"
	"github.com/comercia-app/comercia/internal/sales/customers"
	"github.com/comercia-app/comercia/internal/shared"
)

type memoryOrderRepo struct {
	orders     map[int64]*Order
	nextID     int64
	nextLineID int64

	// codeCollisions makes the next N inserts fail as if a concurrent
	// create had claimed the generated code first.
	codeCollisions int
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[int64]*Order), nextID: 1, nextLineID: 1}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	return &cp
}

func (r *memoryOrderRepo) snapshot() map[int64]*Order {
	out := make(map[int64]*Order, len(r.orders))
	for id, o := range r.orders {
		out[id] = cloneOrder(o)
	}
	return out
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, (*memoryOrderTx)(r)); err != nil {
		r.orders = saved
		return err
	}
	return nil
}

func (r *memoryOrderRepo) Get(_ context.Context, id int64) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memoryOrderRepo) List(_ context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range r.orders {
		if o.CompanyID != req.CompanyID {
			continue
		}
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, len(out), nil
}

func (r *memoryOrderRepo) UpdateStatus(_ context.Context, id int64, status OrderStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	return nil
}

type memoryOrderTx memoryOrderRepo

func (t *memoryOrderTx) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return (*memoryOrderRepo)(t).Get(ctx, id)
}

func (t *memoryOrderTx) GenerateCode(_ context.Context, companyID int64) (string, error) {
	return fmt.Sprintf("ORD-%d-%04d", companyID, t.nextID), nil
}

func (t *memoryOrderTx) Insert(_ context.Context, order Order) (int64, error) {
	if t.codeCollisions > 0 {
		t.codeCollisions--
		t.nextID++ // the concurrent writer claimed this code
		return 0, fmt.Errorf("%w: %s", ErrCodeTaken, order.Code)
	}
	order.ID = t.nextID
	t.nextID++
	t.orders[order.ID] = &order
	return order.ID, nil
}

func (t *memoryOrderTx) InsertLines(_ context.Context, orderID int64, lines []OrderLine) error {
	o, ok := t.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	for _, line := range lines {
		line.ID = t.nextLineID
		t.nextLineID++
		line.OrderID = orderID
		o.Lines = append(o.Lines, line)
	}
	return nil
}

func (t *memoryOrderTx) DeleteLines(_ context.Context, orderID int64) error {
	o, ok := t.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.Lines = nil
	return nil
}

func (t *memoryOrderTx) UpdateStatus(ctx context.Context, id int64, status OrderStatus) error {
	return (*memoryOrderRepo)(t).UpdateStatus(ctx, id, status)
}

type memoryProductRepo struct {
	products map[int64]products.Product
	adjusted map[int64]int64
}

func newMemoryProductRepo(items ...products.Product) *memoryProductRepo {
	repo := &memoryProductRepo{products: make(map[int64]products.Product), adjusted: make(map[int64]int64)}
	for _, p := range items {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryProductRepo) List(context.Context, products.ListFilters) ([]products.Product, int, error) {
	return nil, 0, nil
}

func (r *memoryProductRepo) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return products.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryProductRepo) ListByIDs(_ context.Context, ids []int64) ([]products.Product, error) {
	var out []products.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProductRepo) Create(_ context.Context, p products.Product) (products.Product, error) {
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryProductRepo) Update(_ context.Context, id int64, p products.Product) error {
	r.products[id] = p
	return nil
}

func (r *memoryProductRepo) AdjustStock(_ context.Context, id int64, delta int64) error {
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return products.ErrStockDepleted
	}
	p.Stock += delta
	r.products[id] = p
	r.adjusted[id] += delta
	return nil
}

type memoryCustomerRepo struct {
	customers map[int64]customers.Customer
}

func (r *memoryCustomerRepo) Get(_ context.Context, id int64) (*customers.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, customers.ErrNotFound
	}
	return &c, nil
}

func (r *memoryCustomerRepo) List(context.Context, customers.ListCustomersRequest) ([]customers.Customer, int, error) {
	return nil, 0, nil
}

func (r *memoryCustomerRepo) Create(_ context.Context, c customers.Customer) (int64, error) {
	r.customers[c.ID] = c
	return c.ID, nil
}

func (r *memoryCustomerRepo) Update(context.Context, int64, map[string]interface{}) error {
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, shared.AuditLog) error { return nil }

func newTestService(repo *memoryOrderRepo, productRepo *memoryProductRepo) *Service {
	custRepo := &memoryCustomerRepo{customers: map[int64]customers.Customer{
		10: {ID: 10, CompanyID: 1, Name: "ACME"},
	}}
	return NewService(repo, productRepo, custRepo, nopAudit{}, productRepo, nil)
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateGroupsAndSnapshotsPrices(t *testing.T) {
	repo := newMemoryOrderRepo()
	productRepo := newMemoryProductRepo(
		products.Product{ID: 1, Name: "Widget", Price: money("10.00"), Stock: 10},
		products.Product{ID: 2, Name: "Gadget", Price: money("5.00"), Stock: 10},
	)
	svc := newTestService(repo, productRepo)

	customerID := int64(10)
	order, err := svc.Create(context.Background(), CreateOrderRequest{
		CompanyID:  1,
		CustomerID: &customerID,
		Items: []CreateOrderItemReq{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 3},
			{ProductID: 1, Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.Equal(t, OrderStatusReceived, order.Status)
	require.Equal(t, PaymentStatusPending, order.PaymentStatus)
	require.NotEmpty(t, order.Code)
	require.Len(t, order.Lines, 2)
	require.Equal(t, int64(2), order.Lines[0].Quantity)
	require.True(t, order.Lines[0].UnitPrice.Equal(money("10.00")))
	require.Equal(t, "Widget", order.Lines[0].ProductName)
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.codeCollisions = 1
	productRepo := newMemoryProductRepo(
		products.Product{ID: 1, Name: "Widget", Price: money("10.00"), Stock: 10},
	)
	svc := newTestService(repo, productRepo)

	order, err := svc.Create(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		Items:     []CreateOrderItemReq{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)

	require.Equal(t, "ORD-1-0002", order.Code, "retry must pick a fresh code past the one the concurrent writer took")
	require.Len(t, repo.orders, 1)
	require.Len(t, order.Lines, 1)
}

func TestCreateGivesUpAfterRepeatedCodeCollisions(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.codeCollisions = 10
	productRepo := newMemoryProductRepo(
		products.Product{ID: 1, Name: "Widget", Price: money("10.00"), Stock: 10},
	)
	svc := newTestService(repo, productRepo)

	_, err := svc.Create(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		Items:     []CreateOrderItemReq{{ProductID: 1, Quantity: 2}},
	})
	require.ErrorIs(t, err, ErrCodeTaken)
	require.Empty(t, repo.orders)
}

func TestCreateUnknownProduct(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, newMemoryProductRepo())

	_, err := svc.Create(context.Background(), CreateOrderRequest{
		CompanyID: 1,
		Items:     []CreateOrderItemReq{{ProductID: 99, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.orders)
}

func seedOrder(repo *memoryOrderRepo, status OrderStatus, lines ...OrderLine) int64 {
	id := repo.nextID
	repo.nextID++
	repo.orders[id] = &Order{
		ID:            id,
		Code:          fmt.Sprintf("ORD-TEST-%04d", id),
		CompanyID:     1,
		Status:        status,
		PaidAmount:    decimal.Zero,
		BalanceAfter:  decimal.Zero,
		PaymentStatus: PaymentStatusPending,
		Lines:         lines,
	}
	return id
}

func TestConfirmTransitionsAndSummarizes(t *testing.T) {
	repo := newMemoryOrderRepo()
	productRepo := newMemoryProductRepo(
		products.Product{ID: 1, Name: "Widget", Price: money("10.00"), Stock: 5},
		products.Product{ID: 2, Name: "Gadget", Price: money("5.00"), Stock: 5},
	)
	svc := newTestService(repo, productRepo)

	// duplicate widget rows simulate pre-confirmation duplicate insertion
	id := seedOrder(repo, OrderStatusReceived,
		OrderLine{ProductID: 1, ProductName: "Widget", Quantity: 1, UnitPrice: money("10.00")},
		OrderLine{ProductID: 2, ProductName: "Gadget", Quantity: 3, UnitPrice: money("5.00")},
		OrderLine{ProductID: 1, ProductName: "Widget", Quantity: 1, UnitPrice: money("10.00")},
	)

	result, err := svc.Confirm(context.Background(), id, 1)
	require.NoError(t, err)

	require.True(t, result.Total.Equal(money("35.00")), "got %s", result.Total)
	require.Equal(t, "2 x Widget @ $10.00 = $20.00\n3 x Gadget @ $5.00 = $15.00", result.Summary)

	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusInProcess, stored.Status)
	require.Len(t, stored.Lines, 2)
	require.Equal(t, int64(2), stored.Lines[0].Quantity)

	// stock decrement delegated to the collaborator
	require.Equal(t, int64(-2), productRepo.adjusted[1])
	require.Equal(t, int64(-3), productRepo.adjusted[2])
}

func TestConfirmStockGate(t *testing.T) {
	repo := newMemoryOrderRepo()
	productRepo := newMemoryProductRepo(
		products.Product{ID: 1, Name: "Widget", Price: money("10.00"), Stock: 3},
	)
	svc := newTestService(repo, productRepo)

	id := seedOrder(repo, OrderStatusReceived,
		OrderLine{ProductID: 1, ProductName: "Widget", Quantity: 5, UnitPrice: money("10.00")},
	)

	_, err := svc.Confirm(context.Background(), id, 1)

	var confirmErr *ConfirmError
	require.ErrorAs(t, err, &confirmErr)
	require.Len(t, confirmErr.Violations, 1)
	v := confirmErr.Violations[0]
	require.Equal(t, ViolationInsufficientStock, v.Kind)
	require.Equal(t, int64(3), v.Available)
	require.Equal(t, int64(5), v.Requested)

	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OrderStatusReceived, stored.Status)
	require.Len(t, stored.Lines, 1)
	require.Empty(t, productRepo.adjusted)
}

func TestConfirmRejectsNonReceived(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, newMemoryProductRepo())

	for _, status := range []OrderStatus{OrderStatusInProcess, OrderStatusShipped} {
		id := seedOrder(repo, status)
		_, err := svc.Confirm(context.Background(), id, 1)
		require.ErrorIs(t, err, ErrInvalidStatus)
	}
}

func TestUpdateStatusWireValues(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, newMemoryProductRepo())
	id := seedOrder(repo, OrderStatusReceived)

	order, err := svc.UpdateStatus(context.Background(), id, WireStatusUnshipped)
	require.NoError(t, err)
	require.Equal(t, OrderStatusInProcess, order.Status)

	order, err = svc.UpdateStatus(context.Background(), id, WireStatusShipped)
	require.NoError(t, err)
	require.Equal(t, OrderStatusShipped, order.Status)

	_, err = svc.UpdateStatus(context.Background(), id, "unknown")
	require.ErrorIs(t, err, ErrUnknownWireStatus)
}
