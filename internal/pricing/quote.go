package pricing

import "genclient/internal/domain"

// Quote pairs an estimate with the balance it was compared against.
type Quote struct {
	Estimate   int
	Balance    int
	Sufficient bool
	Shortfall  int
}

// NewQuote prices params against balance.
func NewQuote(params domain.GenerationParams, balance int) (Quote, error) {
	cost, err := Estimate(params)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Estimate: cost, Balance: balance, Sufficient: cost <= balance}
	if !q.Sufficient {
		q.Shortfall = cost - balance
	}
	return q, nil
}
