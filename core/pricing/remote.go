package pricing

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bonita/core/types"
	"bonita/internal/errors"
)

// PriceMarker is the label that precedes the base land price on a soil code page.
const PriceMarker = "Základní cena pozemků [Kč/m<sup>2</sup>]"

// DefaultRetryInterval is the fixed wait between failed page attempts.
const DefaultRetryInterval = 5 * time.Second

var priceNumber = regexp.MustCompile(`^[0-9]+(?:[.,][0-9]+)?$`)

// PageFetcher returns the raw price page for one soil code.
type PageFetcher interface {
	FetchPage(ctx context.Context, code types.SoilCode) (string, error)
}

// RemoteResolver fetches a soil code price from its page, retrying until it
// gets one. There is no attempt limit and no exponential back-off: a run
// needs every price, so it waits for the source to come back. Only
// cancellation of ctx stops the loop.
type RemoteResolver struct {
	fetcher  PageFetcher
	interval time.Duration
	logger   *zap.Logger

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRemoteResolver creates a resolver. interval <= 0 means DefaultRetryInterval.
func NewRemoteResolver(fetcher PageFetcher, interval time.Duration, logger *zap.Logger) *RemoteResolver {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteResolver{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		sleep:    sleepWithContext,
	}
}

// Resolve returns the price for code. It never reports a miss; the only error
// is ctx's.
func (r *RemoteResolver) Resolve(ctx context.Context, code types.SoilCode) (decimal.Decimal, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return decimal.Decimal{}, err
		}
		r.logger.Info("fetching soil code price", zap.String("code", code.String()), zap.Int("attempt", attempt))

		page, err := r.fetcher.FetchPage(ctx, code)
		if err == nil {
			var price decimal.Decimal
			if price, err = ParsePricePage(page); err == nil {
				r.logger.Info("price found", zap.String("code", code.String()), zap.String("price", price.String()))
				return price, nil
			}
		}

		r.logger.Warn("soil code price unavailable, retrying",
			zap.String("code", code.String()),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", r.interval),
			zap.Error(err))
		if err := r.sleep(ctx, r.interval); err != nil {
			return decimal.Decimal{}, err
		}
	}
}

// ParsePricePage finds PriceMarker and returns the number held by the first
// span after it. Entities are decoded and spaces inside the number ignored; a
// decimal comma is read as a point.
func ParsePricePage(content string) (decimal.Decimal, error) {
	idx := strings.Index(content, PriceMarker)
	if idx < 0 {
		return decimal.Decimal{}, errors.Parsing("price marker not found", nil)
	}

	text, ok := firstSpanText(content[idx+len(PriceMarker):])
	if !ok {
		return decimal.Decimal{}, errors.Parsing("no price span after price marker", nil)
	}
	token := strings.Join(strings.Fields(text), "")
	if !priceNumber.MatchString(token) {
		return decimal.Decimal{}, errors.Parsing("invalid price "+strings.TrimSpace(text), nil)
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(token, ",", "."))
	if err != nil {
		return decimal.Decimal{}, errors.Parsing("invalid price "+token, err)
	}
	return price, nil
}

// firstSpanText returns the unescaped text of the first span element in page.
func firstSpanText(page string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(page))
	depth := 0
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String(), depth > 0
		case html.StartTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Span {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Span && depth > 0 {
				depth--
				if depth == 0 {
					return b.String(), true
				}
			}
		case html.TextToken:
			if depth > 0 {
				b.WriteString(z.Token().Data)
			}
		}
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
