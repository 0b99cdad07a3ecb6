package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

// PricingUseCase converts the USD-pegged plan prices into Pi.
type PricingUseCase interface {
	Prices(ctx context.Context) (*model.PlanPrices, error)
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	oracle adapter.PriceOracle
	log    *zerolog.Logger
}

func NewPricingUseCase(oracle adapter.PriceOracle, logger *zerolog.Logger) PricingUseCase {
	l := logger.With().Str("component", "PricingUseCase").Logger()
	return &pricingUC{oracle: oracle, log: &l}
}

func (p *pricingUC) Prices(ctx context.Context) (*model.PlanPrices, error) {
	usd, err := p.oracle.PiPriceUSD(ctx)
	if err != nil {
		return nil, err
	}
	if usd <= 0 {
		return nil, fmt.Errorf("%w: non-positive quote %v", domain.ErrPriceUnavailable, usd)
	}
	return &model.PlanPrices{
		PiPriceUSD:     usd,
		Standard:       piAmount(model.PlanStandard.PriceInUSD(), usd),
		CategorySlider: piAmount(model.PlanCategorySlider.PriceInUSD(), usd),
		MainSlider:     piAmount(model.PlanMainSlider.PriceInUSD(), usd),
	}, nil
}

// piAmount rounds up to two decimals so the charge never undershoots.
func piAmount(usd, piPrice float64) float64 {
	return math.Ceil(usd/piPrice*100) / 100
}
