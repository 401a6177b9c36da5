package ta

import (
	"context"
	"errors"
	"fmt"

	"github.com/preet1249/AI-Trading-ML/internal/indicator"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/structure"
)

// DeepZoneScan re-runs consolidation detection on every timeframe with the
// looser deep-scan thresholds and merges overlapping zones of the same type.
// Timeframes without enough candles for ATR are skipped.
func (a *Analyzer) DeepZoneScan(ctx context.Context, symbol string) ([]model.ZoneRange, error) {
	symbol = model.NormalizeSymbol(symbol)
	views, err := a.views(symbol)
	if err != nil {
		return nil, err
	}
	ds := a.cfg.DeepScan
	period := a.engine.Params().ATRPeriod

	var zones []model.ZoneRange
	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		atr, err := indicator.ATR(v.Candles, period)
		if errors.Is(err, model.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("deep scan %s: %w", v.Key, err)
		}
		for _, z := range structure.ConsolidationZones(v.Candles, atr, ds.ZoneATRFactor, ds.MinZoneCandles, ds.MaxZones) {
			z.Timeframe = v.Key.Timeframe
			zones = append(zones, z)
		}
	}
	merged := structure.MergeZones(zones)
	if merged == nil {
		merged = []model.ZoneRange{}
	}
	return merged, nil
}
