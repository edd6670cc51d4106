package rewards

import (
	"context"
	"sync"

	"leverager/internal/core"

	"github.com/shopspring/decimal"
)

// SimulatedDistributor accumulates reward emissions in memory and pays out
// the full pending balance on claim.
type SimulatedDistributor struct {
	mu      sync.Mutex
	pending map[string]decimal.Decimal
}

func NewSimulatedDistributor() *SimulatedDistributor {
	return &SimulatedDistributor{pending: make(map[string]decimal.Decimal)}
}

// Accrue adds an emission to the pending balance of a token.
func (d *SimulatedDistributor) Accrue(token string, amount decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[token] = d.pending[token].Add(amount)
}

// Claim pays out pending rewards. An empty requested set claims everything;
// otherwise only the named tokens are paid.
func (d *SimulatedDistributor) Claim(ctx context.Context, requested []core.RewardClaim) ([]core.RewardClaim, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tokens := make([]string, 0, len(d.pending))
	if len(requested) == 0 {
		for token := range d.pending {
			tokens = append(tokens, token)
		}
	} else {
		for _, claim := range requested {
			tokens = append(tokens, claim.Token)
		}
	}

	var paid []core.RewardClaim
	for _, token := range tokens {
		amount := d.pending[token]
		if !amount.IsPositive() {
			continue
		}
		delete(d.pending, token)
		paid = append(paid, core.RewardClaim{Token: token, Amount: amount})
	}
	return paid, nil
}
