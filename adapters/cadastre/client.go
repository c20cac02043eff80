// Package cadastre resolves parcels through the cadastre parcel-search API
// (api-kn.cuzk.gov.cz).
package cadastre

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bonita/core/types"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

// Query constants of the parcel search endpoint.
const (
	parcelTypePKN       = "PKN"
	numberingTypeParcel = "2"

	// UnknownLandType is reported when a parcel has no soil codes and no
	// land type name.
	UnknownLandType = "Unknown type"

	apiKeyHeader = "ApiKey"
)

// DefaultBaseURL is the parcel search endpoint
const DefaultBaseURL = "https://api-kn.cuzk.gov.cz/api/v1/Parcely/Vyhledani"

// Config configures the client
type Config struct {
	// BaseURL of the search endpoint
	BaseURL string

	// Timeout per request
	Timeout time.Duration
}

// DefaultConfig returns the public endpoint with a 15s timeout
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 15 * time.Second,
	}
}

// Client queries the parcel search API. Every call is a single attempt.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logging.Named("cadastre"),
	}
}

// searchResponse is the subset of the search payload that is used.
type searchResponse struct {
	Data []parcelData `json:"data"`
}

type parcelData struct {
	Vymera      *json.Number `json:"vymera"`
	LV          *sheetData   `json:"lv"`
	DruhPozemku *landType    `json:"druhPozemku"`
	BPEJ        []soilData   `json:"bpej"`
}

type sheetData struct {
	Cislo looseValue `json:"cislo"`
}

type landType struct {
	Nazev string `json:"nazev"`
}

type soilData struct {
	Kod    looseValue   `json:"kod"`
	Vymera *json.Number `json:"vymera"`
}

// looseValue holds a field the API sends either as a JSON number or a string.
// Any other JSON value is kept as its raw text and fails later conversion.
type looseValue string

func (v *looseValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = looseValue(s)
		return nil
	}
	*v = looseValue(strings.TrimSpace(string(b)))
	return nil
}

// Resolve looks up one parcel. Transport failures and non-2xx statuses are
// TypeTransport errors, an undecodable body is TypeParsing, and an empty
// result set is TypeNotFound.
func (c *Client) Resolve(ctx context.Context, id types.ParcelID, areaCode int, apiKey string) (*types.ParcelRecord, error) {
	reqURL, err := c.searchURL(id, areaCode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Internal("create request", err)
	}
	req.Header.Set(apiKeyHeader, apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("searching parcel", zap.Stringer("parcel", id), zap.Int("area_code", areaCode))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Transport("could not fetch data from cadastre for parcel "+id.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transport("read cadastre response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.TypeTransport, "cadastre returned %d for parcel %s: %s",
			resp.StatusCode, id, truncate(string(body), 200)).
			WithContext("status", resp.StatusCode).
			WithContext("cadastral_area", areaCode)
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Parsing("decode cadastre response for parcel "+id.String(), err)
	}
	if len(payload.Data) == 0 {
		return nil, errors.NotFound("parcel", id.String()).WithContext("cadastral_area", areaCode)
	}

	rec, err := toRecord(id, payload.Data[0])
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) searchURL(id types.ParcelID, areaCode int) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", errors.Wrap(errors.TypeConfig, "invalid cadastre base url", err)
	}
	q := u.Query()
	q.Set("KodKatastralnihoUzemi", strconv.Itoa(areaCode))
	q.Set("TypParcely", parcelTypePKN)
	q.Set("DruhCislovaniParcely", numberingTypeParcel)
	q.Set("KmenoveCisloParcely", strconv.Itoa(id.Number))
	if id.HasSubdivision && id.Subdivision > 0 {
		q.Set("PoddeleniCislaParcely", strconv.Itoa(id.Subdivision))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func toRecord(id types.ParcelID, p parcelData) (*types.ParcelRecord, error) {
	area, err := decimalOrZero(p.Vymera)
	if err != nil {
		return nil, errors.Parsing(fmt.Sprintf("parcel %s: invalid area", id), err)
	}
	rec := &types.ParcelRecord{ID: id, Area: area}

	// a sheet number that is not an integer is dropped, not fatal
	if p.LV != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(p.LV.Cislo))); err == nil {
			rec.Sheet = &n
		}
	}

	if len(p.BPEJ) == 0 {
		rec.LandType = UnknownLandType
		if p.DruhPozemku != nil && p.DruhPozemku.Nazev != "" {
			rec.LandType = p.DruhPozemku.Nazev
		}
		return rec, nil
	}

	rec.SoilAreas = make([]types.SoilArea, 0, len(p.BPEJ))
	for _, b := range p.BPEJ {
		code, err := types.NormalizeSoilCode(string(b.Kod))
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("parcel %s: invalid soil code", id), err)
		}
		sa, err := decimalOrZero(b.Vymera)
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("parcel %s: invalid area for soil code %s", id, code), err)
		}
		rec.SoilAreas = append(rec.SoilAreas, types.SoilArea{Code: code, Area: sa})
	}
	return rec, nil
}

func decimalOrZero(n *json.Number) (decimal.Decimal, error) {
	if n == nil || *n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
