// Order workflow: a multi-step request whose validation, payment, and
// persistence steps each run under their own child span. Nothing is stored;
// the order exists only for the lifetime of the request.
package demo

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Order is the transient created-order summary returned by the endpoint.
type Order struct {
	ID     string
	Status string
	Total  decimal.Decimal
}

type cartLine struct {
	sku   string
	qty   int64
	price decimal.Decimal
}

// demoCart is the fixed cart every demo order is built from. The lines sum
// to 119.97.
var demoCart = []cartLine{
	{sku: "widget", qty: 2, price: decimal.RequireFromString("19.99")},
	{sku: "gadget", qty: 1, price: decimal.RequireFromString("49.99")},
	{sku: "gizmo", qty: 1, price: decimal.RequireFromString("30.00")},
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	s.logger.InfoContext(ctx, "creating new order")
	order, err := s.createOrder(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.Total.String()),
	)
	s.logger.InfoContext(ctx, "order created successfully",
		slog.String("order.id", order.ID),
		slog.String("total", order.Total.String()),
	)

	return writeJSON(w, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
		"total":    order.Total.String(),
	})
}

func (s *Service) createOrder(ctx context.Context) (Order, error) {
	order := Order{ID: uuid.NewString(), Status: "created"}

	total, err := s.validateOrder(ctx)
	if err != nil {
		return Order{}, err
	}
	order.Total = total

	if err := s.chargePayment(ctx, total); err != nil {
		return Order{}, err
	}
	if err := s.persistOrder(ctx, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) validateOrder(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "validate-order")
	defer span.End()

	if err := s.simulate(ctx, s.baseLatency); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, line := range demoCart {
		total = total.Add(line.price.Mul(decimal.NewFromInt(line.qty)))
	}
	span.SetAttributes(attribute.Int("order.items", len(demoCart)))
	s.logger.DebugContext(ctx, "order validated")
	return total, nil
}

func (s *Service) chargePayment(ctx context.Context, amount decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "charge-payment")
	defer span.End()

	span.SetAttributes(attribute.String("payment.amount", amount.String()))
	if err := s.simulate(ctx, 3*s.baseLatency); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "payment processed")
	return nil
}

func (s *Service) persistOrder(ctx context.Context, order Order) error {
	ctx, span := s.tracer.Start(ctx, "persist-order")
	defer span.End()

	span.SetAttributes(attribute.String("order.id", order.ID))
	if err := s.simulate(ctx, 2*s.baseLatency); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "order persisted")
	return nil
}
