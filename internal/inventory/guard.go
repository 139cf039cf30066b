package inventory

import (
	"context"

	"github.com/joao-fontenele/rentflow/internal/availability"
)

// Guard is the advisory check run at checkout. Passing it does not reserve
// anything; the binding check happens when the order is confirmed.
type Guard struct {
	engine *availability.Engine
}

func NewGuard(store availability.Store) *Guard {
	return &Guard{engine: availability.NewEngine(store)}
}

func (g *Guard) Check(ctx context.Context, requests []availability.Request) (*availability.Result, error) {
	return g.engine.Check(ctx, availability.SoftScope, requests, "")
}
