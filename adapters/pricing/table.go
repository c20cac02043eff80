package pricing

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	corepricing "bonita/core/pricing"
	"bonita/core/types"
	"bonita/internal/errors"
)

// priceColumn is the zero-based cell index of the base price in a table row.
const priceColumn = 4

var fiveDigits = regexp.MustCompile(`\d{5}`)

// Refresh downloads the overview table and replaces the cache file at path.
// It satisfies core/pricing.Refresher.
func (c *Client) Refresh(ctx context.Context, path string) error {
	page, err := c.get(ctx, c.config.TableURL)
	if err != nil {
		return errors.Wrap(errors.TypeRefresh, "download price table", err)
	}

	prices, err := ParsePriceTable(page)
	if err != nil {
		return errors.Wrap(errors.TypeRefresh, "parse price table", err)
	}

	if err := corepricing.SaveCache(path, prices); err != nil {
		return err
	}
	c.logger.Info("price table saved", zap.String("path", path), zap.Int("codes", len(prices)))
	return nil
}

// ParsePriceTable extracts code/price pairs from the overview page. A row
// qualifies when it has at least five cells and its first cell holds a link
// whose href, or failing that its text, contains a five digit code. The fifth
// cell is the price; a blank or non-numeric price is stored as 0. Later rows
// win on duplicate codes.
func ParsePriceTable(page string) (map[types.SoilCode]decimal.Decimal, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, errors.Parsing("parse html", err)
	}

	prices := make(map[types.SoilCode]decimal.Decimal)
	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.Tr {
			return
		}
		cells := children(n, atom.Td)
		if len(cells) <= priceColumn {
			return
		}
		code, ok := rowCode(cells[0])
		if !ok {
			return
		}
		prices[code] = cellPrice(cells[priceColumn])
	})

	if len(prices) == 0 {
		return nil, errors.New(errors.TypeParsing, "no soil codes found in price table")
	}
	return prices, nil
}

func rowCode(cell *html.Node) (types.SoilCode, bool) {
	var link *html.Node
	walk(cell, func(n *html.Node) {
		if link == nil && n.DataAtom == atom.A {
			link = n
		}
	})
	if link == nil {
		return "", false
	}

	m := fiveDigits.FindString(attr(link, "href"))
	if m == "" {
		m = fiveDigits.FindString(text(link))
	}
	if m == "" {
		return "", false
	}
	code, err := types.NormalizeSoilCode(m)
	if err != nil {
		return "", false
	}
	return code, true
}

func cellPrice(cell *html.Node) decimal.Decimal {
	raw := strings.ReplaceAll(strings.TrimSpace(text(cell)), ",", ".")
	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// walk visits n and its descendants depth-first.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func children(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
