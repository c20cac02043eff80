package valuation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bonita/core/types"
	"bonita/internal/errors"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(n int) *int { return &n }

func mustID(t *testing.T, s string) types.ParcelID {
	t.Helper()
	id, err := types.ParseParcelID(s)
	require.NoError(t, err)
	return id
}

// fakeCadastre answers from a fixed table; ids missing from the table fail.
type fakeCadastre struct {
	records map[types.ParcelID]*types.ParcelRecord
	calls   []types.ParcelID
	gotArea int
	gotKey  string
}

func (f *fakeCadastre) Resolve(_ context.Context, id types.ParcelID, areaCode int, apiKey string) (*types.ParcelRecord, error) {
	f.calls = append(f.calls, id)
	f.gotArea, f.gotKey = areaCode, apiKey
	rec, ok := f.records[id]
	if !ok {
		return nil, errors.Transport("could not fetch data from cadastre", fmt.Errorf("connection refused"))
	}
	return rec, nil
}

// fakePrices serves a fixed price table and counts lookups per code.
type fakePrices struct {
	prices map[types.SoilCode]decimal.Decimal
	calls  map[types.SoilCode]int
}

func newFakePrices(prices map[types.SoilCode]decimal.Decimal) *fakePrices {
	return &fakePrices{prices: prices, calls: make(map[types.SoilCode]int)}
}

func (f *fakePrices) Resolve(_ context.Context, code types.SoilCode) (decimal.Decimal, types.PriceSource, error) {
	f.calls[code]++
	p, ok := f.prices[code]
	if !ok {
		return decimal.Zero, "", fmt.Errorf("no price for %s", code)
	}
	return p, types.PriceFromCache, nil
}

func newTestEngine(c ParcelResolver, p PriceResolver) *Engine {
	return NewEngine(c, p,
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }),
		WithRunID(func() string { return "run-1" }),
	)
}

var decimalCmp = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestRunParcelsWithoutSoilCodes(t *testing.T) {
	a, b := mustID(t, "1119/1"), mustID(t, "1284")
	cad := &fakeCadastre{records: map[types.ParcelID]*types.ParcelRecord{
		a: {ID: a, Area: d("500"), LandType: "zahrada"},
		b: {ID: b, Area: d("300"), LandType: "ostatní plocha"},
	}}
	prices := newFakePrices(nil)

	rep, err := newTestEngine(cad, prices).Run(context.Background(), Config{
		APIKey:            "secret",
		CadastralAreaCode: 123456,
		Parcels:           []types.ParcelID{a, b},
		UseLocalCache:     true,
		ForceFreshCache:   true,
	})
	require.NoError(t, err)

	want := &types.Report{
		RunID:             "run-1",
		GeneratedAt:       time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		CadastralAreaCode: 123456,
		UsedLocalCache:    true,
		ForcedFreshCache:  true,
		TotalArea:         d("800"),
		Breakdown:         []types.SoilLine{},
		WeightedSum:       decimal.Zero,
		AveragePrice:      decimal.Zero,
		Unclassified: []types.UnclassifiedParcel{
			{Parcel: "1119/1", Area: d("500"), LandType: "zahrada"},
			{Parcel: "1284", Area: d("300"), LandType: "ostatní plocha"},
		},
		UnclassifiedArea: d("800"),
		Sheets:           types.SheetSummary{Kind: types.SheetsNone},
		Formula:          "(No BPEJ data)",
	}
	if diff := cmp.Diff(want, rep, decimalCmp, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 123456, cad.gotArea)
	assert.Equal(t, "secret", cad.gotKey)
	assert.Empty(t, prices.calls)
}

func TestRunWeightedAverage(t *testing.T) {
	a := mustID(t, "10")
	cad := &fakeCadastre{records: map[types.ParcelID]*types.ParcelRecord{
		a: {ID: a, Area: d("300"), Sheet: intPtr(42), SoilAreas: []types.SoilArea{
			{Code: "00100", Area: d("100")},
			{Code: "00200", Area: d("200")},
		}},
	}}
	prices := newFakePrices(map[types.SoilCode]decimal.Decimal{
		"00100": d("5.0"),
		"00200": d("10.0"),
	})

	rep, err := newTestEngine(cad, prices).Run(context.Background(), Config{Parcels: []types.ParcelID{a}})
	require.NoError(t, err)

	assert.True(t, rep.WeightedSum.Equal(d("2500")), "weighted sum %s", rep.WeightedSum)
	assert.True(t, rep.TotalArea.Equal(d("300")))
	assert.Equal(t, "8.33", rep.AveragePrice.StringFixed(2))
	assert.Equal(t, "=((100*5)+(200*10))/300", rep.Formula)
	assert.Equal(t, types.SheetSummary{Kind: types.SheetsUnique, Numbers: []int{42}}, rep.Sheets)
	assert.Empty(t, rep.Unclassified)

	require.Len(t, rep.Breakdown, 2)
	assert.Equal(t, types.SoilCode("00100"), rep.Breakdown[0].Code)
	assert.True(t, rep.Breakdown[1].Partial.Equal(d("2000")))
}

func TestRunParcelFailurePolicy(t *testing.T) {
	good, bad, other := mustID(t, "1"), mustID(t, "2"), mustID(t, "3")
	records := map[types.ParcelID]*types.ParcelRecord{
		good:  {ID: good, Area: d("100"), SoilAreas: []types.SoilArea{{Code: "00100", Area: d("100")}}},
		other: {ID: other, Area: d("50"), LandType: "les"},
	}
	prices := map[types.SoilCode]decimal.Decimal{"00100": d("4")}
	parcels := []types.ParcelID{good, bad, other}

	t.Run("abort", func(t *testing.T) {
		cad := &fakeCadastre{records: records}
		p := newFakePrices(prices)
		rep, err := newTestEngine(cad, p).Run(context.Background(), Config{
			Parcels:         parcels,
			OnParcelFailure: types.FailureAbort,
		})
		require.Error(t, err)
		assert.Nil(t, rep)
		assert.True(t, errors.IsType(err, errors.TypeTransport))
		assert.Contains(t, err.Error(), "parcel 2")
		assert.Equal(t, []types.ParcelID{good, bad}, cad.calls, "remaining parcels are not resolved")
		assert.Empty(t, p.calls, "no pricing after abort")
		assert.Equal(t, 1, errors.ExitCode(err))
	})

	t.Run("default is abort", func(t *testing.T) {
		_, err := newTestEngine(&fakeCadastre{records: records}, newFakePrices(prices)).
			Run(context.Background(), Config{Parcels: parcels})
		assert.Error(t, err)
	})

	t.Run("skip", func(t *testing.T) {
		cad := &fakeCadastre{records: records}
		rep, err := newTestEngine(cad, newFakePrices(prices)).Run(context.Background(), Config{
			Parcels:         parcels,
			OnParcelFailure: types.FailureSkip,
		})
		require.NoError(t, err)
		assert.Len(t, cad.calls, 3)
		assert.True(t, rep.TotalArea.Equal(d("150")))
		require.Len(t, rep.Skipped, 1)
		assert.Equal(t, "2", rep.Skipped[0].Parcel)
		assert.Equal(t, "2.67", rep.AveragePrice.StringFixed(2))
		assert.Equal(t, "=((100*4))/150", rep.Formula)
	})
}

func TestRunSumsSharedCodesAndPricesOnce(t *testing.T) {
	a, b, c := mustID(t, "1"), mustID(t, "2/1"), mustID(t, "2/2")
	cad := &fakeCadastre{records: map[types.ParcelID]*types.ParcelRecord{
		a: {ID: a, Area: d("100"), Sheet: intPtr(7), SoilAreas: []types.SoilArea{{Code: "00200", Area: d("100")}}},
		b: {ID: b, Area: d("60"), Sheet: intPtr(9), SoilAreas: []types.SoilArea{
			{Code: "00100", Area: d("20")},
			{Code: "00200", Area: d("40")},
		}},
		c: {ID: c, Area: d("10"), Sheet: intPtr(7), SoilAreas: []types.SoilArea{{Code: "00100", Area: d("10")}}},
	}}
	prices := newFakePrices(map[types.SoilCode]decimal.Decimal{"00100": d("1"), "00200": d("2")})

	rep, err := newTestEngine(cad, prices).Run(context.Background(), Config{Parcels: []types.ParcelID{a, b, c}})
	require.NoError(t, err)

	require.Len(t, rep.Breakdown, 2)
	assert.Equal(t, types.SoilCode("00200"), rep.Breakdown[0].Code, "first-seen order")
	assert.True(t, rep.Breakdown[0].Area.Equal(d("140")))
	assert.True(t, rep.Breakdown[1].Area.Equal(d("30")))
	assert.Equal(t, map[types.SoilCode]int{"00100": 1, "00200": 1}, prices.calls)
	assert.Equal(t, types.SheetSummary{Kind: types.SheetsMultiple, Numbers: []int{7, 9}}, rep.Sheets)
}

func TestRunIsOrderIndependent(t *testing.T) {
	ids := []types.ParcelID{mustID(t, "1"), mustID(t, "2"), mustID(t, "3")}
	records := map[types.ParcelID]*types.ParcelRecord{
		ids[0]: {Area: d("12.5"), SoilAreas: []types.SoilArea{{Code: "00100", Area: d("12.5")}}},
		ids[1]: {Area: d("30"), SoilAreas: []types.SoilArea{{Code: "00200", Area: d("10")}, {Code: "00100", Area: d("20")}}},
		ids[2]: {Area: d("7"), LandType: "vodní plocha"},
	}
	prices := map[types.SoilCode]decimal.Decimal{"00100": d("3.3"), "00200": d("7.1")}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {1, 2, 0}}
	var first *types.Report
	for _, order := range orders {
		var parcels []types.ParcelID
		for _, i := range order {
			parcels = append(parcels, ids[i])
		}
		rep, err := newTestEngine(&fakeCadastre{records: records}, newFakePrices(prices)).
			Run(context.Background(), Config{Parcels: parcels})
		require.NoError(t, err)

		sums := map[types.SoilCode]string{}
		for _, l := range rep.Breakdown {
			sums[l.Code] = l.Area.String()
		}
		assert.Equal(t, map[types.SoilCode]string{"00100": "32.5", "00200": "10"}, sums, "order %v", order)

		if first == nil {
			first = rep
			continue
		}
		assert.True(t, first.TotalArea.Equal(rep.TotalArea), "order %v", order)
		assert.True(t, first.AveragePrice.Equal(rep.AveragePrice), "order %v", order)
	}
}

func TestRunEmptyParcelList(t *testing.T) {
	rep, err := newTestEngine(&fakeCadastre{}, newFakePrices(nil)).Run(context.Background(), Config{})
	require.NoError(t, err)
	assert.True(t, rep.TotalArea.IsZero())
	assert.True(t, rep.AveragePrice.IsZero())
	assert.Equal(t, types.NoSoilFormula, rep.Formula)
	assert.Equal(t, types.SheetsNone, rep.Sheets.Kind)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	id := mustID(t, "1")
	cad := &fakeCadastre{records: map[types.ParcelID]*types.ParcelRecord{id: {Area: d("1"), LandType: "x"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(cad, newFakePrices(nil)).Run(ctx, Config{
		Parcels:         []types.ParcelID{id},
		OnParcelFailure: types.FailureSkip,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, cad.calls)
}

func TestAveragePrice(t *testing.T) {
	tests := []struct {
		weighted, total, want string
	}{
		{"2500", "300", "8.33"},
		{"0", "0", "0"},
		{"10", "0", "0"},
		{"1", "8", "0.13"},   // 0.125 rounds half away from zero
		{"-1", "8", "-0.13"}, // and symmetrically below zero
		{"2", "3", "0.67"},
	}
	for _, tt := range tests {
		t.Run(tt.weighted+"/"+tt.total, func(t *testing.T) {
			got := AveragePrice(d(tt.weighted), d(tt.total))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestFormula(t *testing.T) {
	lines := []types.SoilLine{
		{Area: d("12.5"), Price: d("3.20")},
		{Area: d("7"), Price: d("10")},
	}
	assert.Equal(t, "=((12.5*3.2)+(7*10))/19.5", Formula(lines, d("19.5")))
	assert.Equal(t, types.NoSoilFormula, Formula(lines, decimal.Zero))
	assert.Equal(t, types.NoSoilFormula, Formula(nil, d("5")))
}
