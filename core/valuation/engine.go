// Package valuation computes the area-weighted average soil price (bonita) of
// a set of parcels.
//
// A run is two sequential phases. Every parcel is resolved first, so that the
// set of distinct soil codes is known. Each distinct code is then priced once.
package valuation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bonita/core/determinism"
	"bonita/core/types"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

// ParcelResolver looks up one parcel in the cadastre. One attempt, no retry.
type ParcelResolver interface {
	Resolve(ctx context.Context, id types.ParcelID, areaCode int, apiKey string) (*types.ParcelRecord, error)
}

// PriceResolver prices one soil code. It blocks until a price is known or ctx
// is cancelled.
type PriceResolver interface {
	Resolve(ctx context.Context, code types.SoilCode) (decimal.Decimal, types.PriceSource, error)
}

// Config is the input of one run.
type Config struct {
	APIKey            string
	CadastralAreaCode int
	Parcels           []types.ParcelID

	// UseLocalCache and ForceFreshCache are recorded in the report.
	UseLocalCache   bool
	ForceFreshCache bool

	OnParcelFailure types.FailurePolicy
}

// Engine runs valuations.
type Engine struct {
	parcels  ParcelResolver
	prices   PriceResolver
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
	newRunID func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver reports progress to o
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the report timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunID fixes the run identifier generator
func WithRunID(fn func() string) Option {
	return func(e *Engine) { e.newRunID = fn }
}

// NewEngine creates an engine
func NewEngine(parcels ParcelResolver, prices PriceResolver, opts ...Option) *Engine {
	e := &Engine{
		parcels:  parcels,
		prices:   prices,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Named("valuation")
	}
	if e.observer == nil {
		e.observer = logObserver{e.logger}
	}
	return e
}

// state is the accumulator of one run.
type state struct {
	totalArea    decimal.Decimal
	soilAreas    *determinism.OrderedMap[types.SoilCode, decimal.Decimal]
	sheets       *determinism.OrderedMap[int, struct{}]
	unclassified []types.UnclassifiedParcel
	skipped      []types.SkippedParcel
}

func newState() *state {
	return &state{
		totalArea: decimal.Zero,
		soilAreas: determinism.NewOrderedMap[types.SoilCode, decimal.Decimal](),
		sheets:    determinism.NewOrderedMap[int, struct{}](),
	}
}

func (s *state) add(id types.ParcelID, rec *types.ParcelRecord) {
	s.totalArea = s.totalArea.Add(rec.Area)

	if rec.HasSoilCodes() {
		for _, sa := range rec.SoilAreas {
			area := sa.Area
			s.soilAreas.Update(sa.Code, func(sum decimal.Decimal) decimal.Decimal {
				return sum.Add(area)
			})
		}
	} else {
		s.unclassified = append(s.unclassified, types.UnclassifiedParcel{
			Parcel:   id.String(),
			Area:     rec.Area,
			LandType: rec.LandType,
		})
	}

	if rec.Sheet != nil {
		s.sheets.Set(*rec.Sheet, struct{}{})
	}
}

// Run executes one valuation. Under FailureAbort the first parcel failure
// ends the run with that error and no report. Under FailureSkip the parcel is
// listed in Report.Skipped and left out of every sum.
func (e *Engine) Run(ctx context.Context, cfg Config) (*types.Report, error) {
	policy := cfg.OnParcelFailure
	if policy == "" {
		policy = types.FailureAbort
	}

	st := newState()
	if err := e.resolveParcels(ctx, cfg, policy, st); err != nil {
		return nil, err
	}

	lines, err := e.priceCodes(ctx, st)
	if err != nil {
		return nil, err
	}

	return e.buildReport(cfg, st, lines), nil
}

func (e *Engine) resolveParcels(ctx context.Context, cfg Config, policy types.FailurePolicy, st *state) error {
	count := len(cfg.Parcels)
	for i, id := range cfg.Parcels {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.observer.ParcelQueried(i+1, count, id)

		rec, err := e.parcels.Resolve(ctx, id, cfg.CadastralAreaCode, cfg.APIKey)
		if err == nil && rec == nil {
			err = errors.NotFound("parcel", id.String())
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			skip := policy == types.FailureSkip
			e.observer.ParcelFailed(id, err, skip)
			if !skip {
				return fmt.Errorf("parcel %s: %w", id, err)
			}
			st.skipped = append(st.skipped, types.SkippedParcel{Parcel: id.String(), Reason: err.Error()})
			continue
		}

		st.add(id, rec)
	}
	return nil
}

func (e *Engine) priceCodes(ctx context.Context, st *state) ([]types.SoilLine, error) {
	codes := st.soilAreas.Keys()
	lines := make([]types.SoilLine, 0, len(codes))

	for i, code := range codes {
		e.observer.PriceQueried(i+1, len(codes), code)

		price, source, err := e.prices.Resolve(ctx, code)
		if err != nil {
			return nil, err
		}
		e.observer.PriceResolved(code, price, source)

		area, _ := st.soilAreas.Get(code)
		lines = append(lines, types.SoilLine{
			Code:    code,
			Area:    area,
			Price:   price,
			Partial: area.Mul(price),
			Source:  source,
		})
	}
	return lines, nil
}

func (e *Engine) buildReport(cfg Config, st *state, lines []types.SoilLine) *types.Report {
	weighted := decimal.Zero
	for _, l := range lines {
		weighted = weighted.Add(l.Partial)
	}

	unclassifiedArea := decimal.Zero
	for _, u := range st.unclassified {
		unclassifiedArea = unclassifiedArea.Add(u.Area)
	}

	return &types.Report{
		RunID:             e.newRunID(),
		GeneratedAt:       e.now().UTC(),
		CadastralAreaCode: cfg.CadastralAreaCode,
		UsedLocalCache:    cfg.UseLocalCache,
		ForcedFreshCache:  cfg.ForceFreshCache,
		TotalArea:         st.totalArea,
		Breakdown:         lines,
		WeightedSum:       weighted,
		AveragePrice:      AveragePrice(weighted, st.totalArea),
		Unclassified:      st.unclassified,
		UnclassifiedArea:  unclassifiedArea,
		Sheets:            summarizeSheets(st.sheets.Keys()),
		Formula:           Formula(lines, st.totalArea),
		Skipped:           st.skipped,
	}
}

// AveragePrice is weighted / total rounded to 2 places, half away from zero.
// Zero when total is not positive.
func AveragePrice(weighted, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return weighted.Div(total).Round(2)
}

// Formula renders the computation as a spreadsheet expression, e.g.
// "=((100*5)+(200*10))/300".
func Formula(lines []types.SoilLine, total decimal.Decimal) string {
	if !total.IsPositive() || len(lines) == 0 {
		return types.NoSoilFormula
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = "(" + l.Area.String() + "*" + l.Price.String() + ")"
	}
	return "=(" + strings.Join(parts, "+") + ")/" + total.String()
}

func summarizeSheets(numbers []int) types.SheetSummary {
	switch len(numbers) {
	case 0:
		return types.SheetSummary{Kind: types.SheetsNone}
	case 1:
		return types.SheetSummary{Kind: types.SheetsUnique, Numbers: numbers}
	default:
		return types.SheetSummary{Kind: types.SheetsMultiple, Numbers: numbers}
	}
}
