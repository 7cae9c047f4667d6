package notify

import (
	"context"

	"caredispatch/internal/modules/order"
)

// Nop discards all events. Used when no broker URL is configured.
type Nop struct{}

func (Nop) OrderOffered(context.Context, *order.Order)  {}
func (Nop) OrderAssigned(context.Context, *order.Order) {}
func (Nop) OrderTimedOut(context.Context, *order.Order) {}
