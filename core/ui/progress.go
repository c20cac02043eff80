package ui

import (
	"github.com/shopspring/decimal"

	"bonita/core/pricing"
	"bonita/core/types"
)

// Progress prints run progress for the operator. It satisfies
// valuation.Observer.
type Progress struct {
	w *Writer
}

// NewProgress creates a progress printer
func NewProgress(w *Writer) *Progress {
	return &Progress{w: w}
}

func (p *Progress) ParcelQueried(index, count int, id types.ParcelID) {
	p.w.Info("Querying parcel %d/%d: %s", index, count, id)
}

func (p *Progress) ParcelFailed(id types.ParcelID, err error, skipped bool) {
	if skipped {
		p.w.Warning("skipping parcel %s: %v", id, err)
		return
	}
	p.w.Error("Fatal error for parcel %s: %v", id, err)
}

func (p *Progress) PriceQueried(index, count int, code types.SoilCode) {
	p.w.Info("Determining price for BPEJ code (%d/%d): %s", index, count, code)
}

func (p *Progress) PriceResolved(code types.SoilCode, price decimal.Decimal, source types.PriceSource) {
	if source == types.PriceFromCache {
		p.w.Debug("Using cached price: %s", price)
		return
	}
	p.w.Info("  Price found: %s", price)
}

// CacheStatus summarizes the cache preparation step.
func CacheStatus(w *Writer, out *pricing.RefreshOutcome, cache *pricing.Cache) {
	if out != nil {
		switch {
		case !out.Refreshed && out.FileExisted:
			modified := out.ModTime
			if t := cache.ModTime(); !t.IsZero() {
				modified = t
			}
			w.Info("Price cache last modified: %s", modified.Local().Format("2006-01-02 15:04:05"))
		case out.Err != nil:
			w.Warning("price refresh failed: %v", out.Err)
		case out.Changed():
			w.Success("Price cache has changed (old sha256=%s, new sha256=%s).", noneIfEmpty(out.OldChecksum), noneIfEmpty(out.NewChecksum))
		case out.Refreshed:
			w.Info("No changes in price cache (hash is the same).")
		}
	}
	w.Info("Loaded %d BPEJ codes from local cache.", cache.Len())
}

func noneIfEmpty(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
