package model

import (
	"strings"

	"rollingpi/internal/domain"
)

// PlanType is the promotion tier being purchased.
type PlanType string

const (
	PlanStandard       PlanType = "STANDARD"
	PlanCategorySlider PlanType = "CATEGORY_SLIDER"
	PlanMainSlider     PlanType = "MAIN_SLIDER"
)

// SliderCapacity is the maximum number of concurrently promoted articles per
// slider scope (the main slider, or one category's slider).
const SliderCapacity = 7

// PromotionDays is how long a paid slider promotion lasts.
const PromotionDays = 30

var planPricesPi = map[PlanType]float64{
	PlanStandard:       3.00,
	PlanCategorySlider: 20.00,
	PlanMainSlider:     30.00,
}

var planPricesUSD = map[PlanType]float64{
	PlanStandard:       3.5,
	PlanCategorySlider: 25.0,
	PlanMainSlider:     35.0,
}

// ParsePlanType accepts any casing and rejects unknown tiers.
func ParsePlanType(s string) (PlanType, error) {
	p := PlanType(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return p, nil
}

func (p PlanType) Valid() bool {
	_, ok := planPricesPi[p]
	return ok
}

// IsSlider reports whether the plan occupies a limited slider slot.
func (p PlanType) IsSlider() bool {
	return p == PlanCategorySlider || p == PlanMainSlider
}

// Expires reports whether a promotion of this plan runs out. STANDARD
// listings stay up until cancelled.
func (p PlanType) Expires() bool {
	return p.IsSlider()
}

// PriceInPi is the list price of the plan denominated in Pi.
func (p PlanType) PriceInPi() float64 { return planPricesPi[p] }

// PriceInUSD is the USD peg used when quoting plan prices to users.
func (p PlanType) PriceInUSD() float64 { return planPricesUSD[p] }

// TotalSlots returns the slot capacity for the plan; STANDARD is unlimited.
func (p PlanType) TotalSlots() int {
	if p.IsSlider() {
		return SliderCapacity
	}
	return int(^uint32(0) >> 1)
}

// AllPlans lists every plan tier in display order.
func AllPlans() []PlanType {
	return []PlanType{PlanStandard, PlanCategorySlider, PlanMainSlider}
}

// PlanPrices is the public price sheet: each plan's USD peg converted to Pi
// at the quoted rate.
type PlanPrices struct {
	PiPriceUSD     float64 `json:"piPriceUsd"`
	Standard       float64 `json:"STANDARD"`
	CategorySlider float64 `json:"CATEGORY_SLIDER"`
	MainSlider     float64 `json:"MAIN_SLIDER"`
}

// For returns the price of plan from the sheet.
func (p PlanPrices) For(plan PlanType) float64 {
	switch plan {
	case PlanStandard:
		return p.Standard
	case PlanCategorySlider:
		return p.CategorySlider
	case PlanMainSlider:
		return p.MainSlider
	}
	return 0
}
