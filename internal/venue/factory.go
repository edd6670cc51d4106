package venue

import (
	"fmt"
	"strings"

	"leverager/internal/config"
	"leverager/internal/core"

	"github.com/shopspring/decimal"
)

// NewVenue creates a venue instance based on configuration
func NewVenue(venueName string, cfg *config.Config) (core.IVenue, error) {
	venueConfig, exists := cfg.Venues[venueName]
	if !exists {
		return nil, fmt.Errorf("configuration not found for venue: %s", venueName)
	}

	switch strings.ToLower(venueConfig.Family) {
	case "pool":
		return NewSimulated(SimulatedConfig{
			Name:      venueName,
			Asset:     venueConfig.Asset,
			MaxLtvBps: venueConfig.MaxLtvBps,
			SupplyAPR: decimal.NewFromFloat(venueConfig.SupplyAPR),
			BorrowAPR: decimal.NewFromFloat(venueConfig.BorrowAPR),
		})
	case "shares":
		return NewShares(SharesConfig{
			Name:              venueName,
			BaseAsset:         venueConfig.Asset,
			ShareAsset:        venueConfig.ShareAsset,
			MaxLtvBps:         venueConfig.MaxLtvBps,
			SupplyAPR:         decimal.NewFromFloat(venueConfig.SupplyAPR),
			BorrowAPR:         decimal.NewFromFloat(venueConfig.BorrowAPR),
			InitialSharePrice: decimal.NewFromFloat(venueConfig.InitialSharePrice),
		})
	default:
		return nil, fmt.Errorf("unsupported venue family: %s", venueConfig.Family)
	}
}
