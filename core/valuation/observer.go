package valuation

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bonita/core/types"
)

// Observer receives progress while a run executes.
type Observer interface {
	ParcelQueried(index, count int, id types.ParcelID)
	ParcelFailed(id types.ParcelID, err error, skipped bool)
	PriceQueried(index, count int, code types.SoilCode)
	PriceResolved(code types.SoilCode, price decimal.Decimal, source types.PriceSource)
}

// logObserver is the default: progress goes to the structured log only.
type logObserver struct {
	logger *zap.Logger
}

func (o logObserver) ParcelQueried(index, count int, id types.ParcelID) {
	o.logger.Debug("querying parcel",
		zap.Int("index", index),
		zap.Int("count", count),
		zap.Stringer("parcel", id))
}

func (o logObserver) ParcelFailed(id types.ParcelID, err error, skipped bool) {
	o.logger.Warn("parcel resolution failed",
		zap.Stringer("parcel", id),
		zap.Bool("skipped", skipped),
		zap.Error(err))
}

func (o logObserver) PriceQueried(index, count int, code types.SoilCode) {
	o.logger.Debug("determining price",
		zap.Int("index", index),
		zap.Int("count", count),
		zap.Stringer("code", code))
}

func (o logObserver) PriceResolved(code types.SoilCode, price decimal.Decimal, source types.PriceSource) {
	o.logger.Debug("price resolved",
		zap.Stringer("code", code),
		zap.String("price", price.String()),
		zap.String("source", string(source)))
}
