package paymentswebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// Event types sent by the payment provider.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Event is the provider's notification body.
type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	OrderID uuid.UUID `json:"order_id"`
}

type orderPayer interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type commissionRecorder interface {
	CreateCommissionLedgerEntries(ctx context.Context, orderID uuid.UUID) (int, error)
}

type ServiceParams struct {
	Orders      orderPayer
	Commissions commissionRecorder
	Logger      *logger.Logger
}

// Service applies confirmed payments to orders.
type Service struct {
	orders      orderPayer
	commissions commissionRecorder
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Commissions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{orders: params.Orders, commissions: params.Commissions, logg: logg}, nil
}

// HandleEvent marks the order paid and writes its commission entries. Both
// steps are idempotent, so a retried delivery that got halfway completes the
// rest. Failed payments are logged only; the pending order stays open for
// another attempt.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment event required")
	}
	if strings.TrimSpace(event.EventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, event.OrderID.String())
	ctx = s.logg.WithField(ctx, "payment_event_id", event.EventID)

	switch event.Type {
	case EventPaymentSucceeded:
		if _, err := s.orders.MarkPaid(ctx, event.OrderID); err != nil {
			return err
		}
		created, err := s.commissions.CreateCommissionLedgerEntries(ctx, event.OrderID)
		if err != nil {
			return err
		}
		s.logg.Info(s.logg.WithField(ctx, "ledger_entries", created), "payment applied")
		return nil
	case EventPaymentFailed:
		s.logg.Warn(ctx, "payment failed for order")
		return nil
	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring payment event type %q", event.Type))
		return nil
	}
}
