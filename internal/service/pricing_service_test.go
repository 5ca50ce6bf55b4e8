package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/pkg/config"
)

func testPricing() *PricingService {
	return NewPricingService(config.PricingConfig{
		OnlineMultiplier:       "0.8",
		LongDurationMultiplier: "1.15",
		LongDurationHours:      16,
	}, nil)
}

func hours(n int) []models.Session {
	sessions := make([]models.Session, 0, n)
	for i := 0; i < n; i++ {
		sessions = append(sessions, models.Session{
			DateString: "2026-03-02",
			StartTime:  "09:00",
			EndTime:    "10:00",
			Active:     true,
		})
	}
	return sessions
}

func TestPriceBaseOnSite(t *testing.T) {
	svc := testPricing()
	price := svc.Price(hours(10), models.ModalityOnSite, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(1000)), "got %s", price)
}

func TestPriceOnlineMultiplier(t *testing.T) {
	svc := testPricing()
	price := svc.Price(hours(10), models.ModalityOnline, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(800)), "got %s", price)
}

func TestPriceLongDurationMultiplier(t *testing.T) {
	svc := testPricing()
	price := svc.Price(hours(17), models.ModalityOnSite, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(1150)), "got %s", price)
}

func TestPriceThresholdIsExclusive(t *testing.T) {
	svc := testPricing()
	// Exactly the threshold does not trigger the long-duration multiplier.
	price := svc.Price(hours(16), models.ModalityOnSite, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(1000)), "got %s", price)
}

func TestPriceMultipliersCompose(t *testing.T) {
	svc := testPricing()
	price := svc.Price(hours(17), models.ModalityOnline, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(920)), "got %s", price)
}

func TestPriceInactiveSessionsExcluded(t *testing.T) {
	svc := testPricing()
	sessions := hours(17)
	sessions[0].Active = false
	price := svc.Price(sessions, models.ModalityOnSite, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(1000)), "got %s", price)
}

func TestPriceOverrideReplacesComputation(t *testing.T) {
	svc := testPricing()
	override := decimal.RequireFromString("123.456")
	price := svc.Price(hours(17), models.ModalityOnline, decimal.NewFromInt(1000), &override)
	assert.True(t, price.Equal(decimal.RequireFromString("123.46")), "got %s", price)
}

func TestPriceDeterministic(t *testing.T) {
	svc := testPricing()
	base := decimal.RequireFromString("999.99")
	first := svc.Price(hours(17), models.ModalityOnline, base, nil)
	second := svc.Price(hours(17), models.ModalityOnline, base, nil)
	require.True(t, first.Equal(second))
	assert.True(t, first.Equal(first.Round(2)))
}

func TestPriceFallbackMultipliers(t *testing.T) {
	svc := NewPricingService(config.PricingConfig{
		OnlineMultiplier:       "not-a-number",
		LongDurationMultiplier: "-2",
	}, nil)
	price := svc.Price(hours(10), models.ModalityOnline, decimal.NewFromInt(1000), nil)
	assert.True(t, price.Equal(decimal.NewFromInt(800)), "got %s", price)
}
