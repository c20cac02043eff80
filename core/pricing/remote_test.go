package pricing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bonita/core/types"
	"bonita/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const pricePage = `<html><body><table>
<tr><td><b>Základní cena pozemků [Kč/m<sup>2</sup>]</b></td><td><span class="price">12.34</span></td></tr>
</table></body></html>`

// scriptedFetcher returns one scripted response per attempt.
type scriptedFetcher struct {
	pages []string
	errs  []error
	calls int
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _ types.SoilCode) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.pages) {
		return f.pages[i], nil
	}
	return pricePage, nil
}

func TestParsePricePage(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"dot decimal", pricePage, "12.34"},
		{"comma decimal", `<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b> <span>7,5</span>`, "7.5"},
		{"integer", `<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b><span>15</span>`, "15"},
		{"next line", "<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b>\n  <span>3.21</span>", "3.21"},
		{"entity before span", `<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b>&#160;<span class="cena">12.34</span>`, "12.34"},
		{"entity inside span", `<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b><span>&nbsp;1&nbsp;234,50 </span>`, "1234.5"},
		{"nested markup", `<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b><span><strong>9.9</strong></span>`, "9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePricePage(tt.page)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParsePricePageFailures(t *testing.T) {
	_, err := ParsePricePage("<html>maintenance</html>")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeParsing))

	for _, page := range []string{
		`<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b><span>n/a</span>`,
		`<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b>&#160;42`,
		`<b>Základní cena pozemků [Kč/m<sup>2</sup>]</b><span>&#49;&#50;-</span>`,
	} {
		_, err = ParsePricePage(page)
		assert.True(t, errors.IsType(err, errors.TypeParsing), "page %q: %v", page, err)
	}
}

func TestRemoteResolverRetriesUntilSuccess(t *testing.T) {
	for k := 0; k <= 4; k++ {
		t.Run(fmt.Sprintf("%d failures", k), func(t *testing.T) {
			f := &scriptedFetcher{}
			for i := 0; i < k; i++ {
				if i%2 == 0 {
					f.errs = append(f.errs, fmt.Errorf("timeout"))
					f.pages = append(f.pages, "")
				} else {
					f.errs = append(f.errs, nil)
					f.pages = append(f.pages, "<html>no marker</html>")
				}
			}

			r := NewRemoteResolver(f, 5*time.Second, nil)
			var waits []time.Duration
			r.sleep = func(_ context.Context, d time.Duration) error {
				waits = append(waits, d)
				return nil
			}

			price, err := r.Resolve(context.Background(), "00100")
			require.NoError(t, err)
			assert.True(t, price.Equal(decimal.RequireFromString("12.34")))
			assert.Equal(t, k+1, f.calls)
			require.Len(t, waits, k)
			for _, w := range waits {
				assert.Equal(t, 5*time.Second, w)
			}
		})
	}
}

func TestRemoteResolverDefaultsInterval(t *testing.T) {
	r := NewRemoteResolver(&scriptedFetcher{}, 0, nil)
	assert.Equal(t, DefaultRetryInterval, r.interval)
}

func TestRemoteResolverStopsOnCancel(t *testing.T) {
	f := &scriptedFetcher{errs: []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")}}
	r := NewRemoteResolver(f, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepWithContext(ctx, d)
	}

	_, err := r.Resolve(ctx, "00100")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.calls)
}

func TestSleepWithContext(t *testing.T) {
	assert.NoError(t, sleepWithContext(context.Background(), 0))
	assert.NoError(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
}
