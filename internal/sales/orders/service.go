package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/comercia-app/comercia/internal/catalog/products"
	"github.com/comercia-app/comercia/internal/sales/customers"
	"github.com/comercia-app/comercia/internal/shared"
)

var (
	// ErrInvalidStatus indicates a disallowed lifecycle transition.
	ErrInvalidStatus = errors.New("orders: invalid status transition")
	// ErrUnknownWireStatus indicates an unrecognized external status value.
	ErrUnknownWireStatus = errors.New("orders: unknown status value")
)

// codeRetries bounds re-attempts when a generated order code collides.
const codeRetries = 3

// AuditPort records audit entries; satisfied by shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StockAdjuster is the collaborator that decrements product stock once an
// order is confirmed. Confirmation itself never touches stock.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID int64, delta int64) error
}

// Service implements order lifecycle operations.
type Service struct {
	repo     Repository
	products products.Repository
	custRepo customers.Repository
	audit    AuditPort
	stock    StockAdjuster
	logger   *slog.Logger
}

func NewService(repo Repository, productRepo products.Repository, custRepo customers.Repository, audit AuditPort, stock StockAdjuster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: productRepo, custRepo: custRepo, audit: audit, stock: stock, logger: logger}
}

// Create persists a new order in status received. Items are grouped and
// priced with a snapshot of the current product price; quantities must be
// positive (enforced at the DTO boundary).
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.CustomerID != nil {
		if _, err := s.custRepo.Get(ctx, *req.CustomerID); err != nil {
			if errors.Is(err, customers.ErrNotFound) {
				return nil, fmt.Errorf("%w: customer %d", shared.ErrNotFound, *req.CustomerID)
			}
			return nil, err
		}
	}

	catalog, err := s.loadProducts(ctx, itemProductIDs(req.Items))
	if err != nil {
		return nil, err
	}

	lines := make([]OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, item.ProductID)
		}
		lines = append(lines, OrderLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}
	lines = GroupLines(lines)

	// Concurrent creates for the same company can derive the same
	// sequential code; the unique index rejects the loser and the whole
	// transaction is retried with a fresh count.
	var orderID int64
	for attempt := 0; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			code, err := tx.GenerateCode(ctx, req.CompanyID)
			if err != nil {
				return fmt.Errorf("orders: generate code: %w", err)
			}
			id, err := tx.Insert(ctx, Order{
				Code:          code,
				CompanyID:     req.CompanyID,
				CustomerID:    req.CustomerID,
				Status:        OrderStatusReceived,
				PaidAmount:    decimal.Zero,
				BalanceAfter:  decimal.Zero,
				PaymentStatus: PaymentStatusPending,
			})
			if err != nil {
				return err
			}
			orderID = id
			return tx.InsertLines(ctx, id, lines)
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrCodeTaken) && attempt < codeRetries {
			continue
		}
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Confirm transitions a received order to in_process. The order row is
// locked for the transaction so concurrent confirmations serialize; the
// second contender sees the already-updated status and is rejected. Lines
// are defensively re-grouped, stock is re-validated against current levels,
// and either every check passes and the grouped lines are persisted, or
// nothing changes and every violation is reported.
func (s *Service) Confirm(ctx context.Context, orderID int64, actorID int64) (*ConfirmResult, error) {
	var result *ConfirmResult
	var confirmed []OrderLine

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderStatusReceived {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidStatus, order.Code, order.Status)
		}

		grouped := GroupLines(order.Lines)

		catalog, err := s.loadProducts(ctx, lineProductIDs(grouped))
		if err != nil {
			return err
		}
		if violations := ValidateStock(grouped, catalog); len(violations) > 0 {
			return &ConfirmError{Violations: violations}
		}

		total := OrderTotal(grouped)

		if err := tx.DeleteLines(ctx, order.ID); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, order.ID, grouped); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, order.ID, OrderStatusInProcess); err != nil {
			return err
		}

		confirmed = grouped
		result = &ConfirmResult{
			OrderCode: order.Code,
			Total:     total,
			Summary:   Summarize(grouped),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stock decrement is delegated; failures here do not unwind the
	// confirmation and are surfaced through logs instead.
	if s.stock != nil {
		for _, line := range confirmed {
			if err := s.stock.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
				s.logger.Error("adjust stock after confirm",
					slog.Int64("order_id", orderID),
					slog.Int64("product_id", line.ProductID),
					slog.Any("error", err))
			}
		}
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "order.confirm",
			Entity:   "sales_order",
			EntityID: strconv.FormatInt(orderID, 10),
			Meta:     map[string]any{"code": result.OrderCode, "total": result.Total.String()},
		}); err != nil {
			s.logger.Warn("audit order confirm", slog.Any("error", err))
		}
	}

	return result, nil
}

// UpdateStatus applies an externally requested shipping-status change. It is
// a direct write with no transition validation beyond mapping the wire value.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, wireStatus string) (*Order, error) {
	status, err := mapWireStatus(wireStatus)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	return s.repo.List(ctx, req)
}

func mapWireStatus(wire string) (OrderStatus, error) {
	switch wire {
	case WireStatusUnshipped:
		return OrderStatusInProcess, nil
	case WireStatusShipped:
		return OrderStatusShipped, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWireStatus, wire)
}

// Summarize renders one line per item: "2 x Widget @ $10.00 = $20.00".
func Summarize(lines []OrderLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%d x %s @ $%s = $%s",
			line.Quantity, line.ProductName,
			line.UnitPrice.StringFixed(2), LineTotal(line).StringFixed(2)))
	}
	return strings.Join(parts, "\n")
}

func (s *Service) loadProducts(ctx context.Context, ids []int64) (map[int64]products.Product, error) {
	found, err := s.products.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	catalog := make(map[int64]products.Product, len(found))
	for _, p := range found {
		catalog[p.ID] = p
	}
	return catalog, nil
}

func itemProductIDs(items []CreateOrderItemReq) []int64 {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func lineProductIDs(lines []OrderLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
