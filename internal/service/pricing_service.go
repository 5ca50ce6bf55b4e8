package service

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/pkg/config"
)

// PricingService derives a course price from its resolved schedule. The
// multipliers are policy inputs from configuration; the service only applies
// them. All arithmetic is fixed-point decimal so recomputation from the same
// inputs always yields the same amount.
type PricingService struct {
	onlineMultiplier       decimal.Decimal
	longDurationMultiplier decimal.Decimal
	longDurationMinutes    int
	logger                 *zap.Logger
}

// NewPricingService instantiates PricingService from configuration, falling
// back to neutral defaults on unparsable values.
func NewPricingService(cfg config.PricingConfig, logger *zap.Logger) *PricingService {
	if logger == nil {
		logger = zap.NewNop()
	}

	online := parseMultiplier(cfg.OnlineMultiplier, "0.8", logger)
	longDuration := parseMultiplier(cfg.LongDurationMultiplier, "1.15", logger)
	thresholdHours := cfg.LongDurationHours
	if thresholdHours <= 0 {
		thresholdHours = 16
	}

	return &PricingService{
		onlineMultiplier:       online,
		longDurationMultiplier: longDuration,
		longDurationMinutes:    thresholdHours * 60,
		logger:                 logger,
	}
}

// Price computes the amount for a session set. An explicit override replaces
// the computed value entirely rather than composing with it.
func (s *PricingService) Price(sessions []models.Session, modality models.Modality, basePrice decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return override.Round(2)
	}

	price := basePrice

	if modality == models.ModalityOnline {
		price = price.Mul(s.onlineMultiplier)
	}

	if s.totalActiveMinutes(sessions) > s.longDurationMinutes {
		price = price.Mul(s.longDurationMultiplier)
	}

	return price.Round(2)
}

func (s *PricingService) totalActiveMinutes(sessions []models.Session) int {
	total := 0
	for _, session := range sessions {
		if !session.Active {
			continue
		}
		sp, err := parseSpan(session.StartTime, session.EndTime)
		if err != nil {
			// Sessions reach pricing only after validation; a malformed one
			// here is a programming error, not a pricing concern.
			s.logger.Warn("skipping malformed session in pricing", zap.String("start", session.StartTime), zap.String("end", session.EndTime))
			continue
		}
		total += sp.end - sp.start
	}
	return total
}

func parseMultiplier(raw, fallback string, logger *zap.Logger) decimal.Decimal {
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Sign() <= 0 {
		logger.Warn("invalid pricing multiplier, using fallback", zap.String("value", raw), zap.String("fallback", fallback))
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}
