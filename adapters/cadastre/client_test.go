package cadastre

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bonita/core/types"
	"bonita/internal/errors"
)

func newServer(t *testing.T, status int, body string, seen *url.Values, key *string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.URL.Query()
		}
		if key != nil {
			*key = r.Header.Get("ApiKey")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/v1/Parcely/Vyhledani", Timeout: 5 * time.Second})
}

func mustID(t *testing.T, s string) types.ParcelID {
	t.Helper()
	id, err := types.ParseParcelID(s)
	require.NoError(t, err)
	return id
}

func TestResolveParcelWithSoilCodes(t *testing.T) {
	var q url.Values
	var key string
	c := newServer(t, http.StatusOK, `{"data":[{
		"vymera": 300,
		"lv": {"cislo": 42},
		"druhPozemku": {"nazev": "orná půda"},
		"bpej": [{"kod": 100, "vymera": 100}, {"kod": "75000", "vymera": 200.5}]
	}]}`, &q, &key)

	rec, err := c.Resolve(context.Background(), mustID(t, "1119/1"), 123456, "secret")
	require.NoError(t, err)

	assert.Equal(t, "123456", q.Get("KodKatastralnihoUzemi"))
	assert.Equal(t, "PKN", q.Get("TypParcely"))
	assert.Equal(t, "2", q.Get("DruhCislovaniParcely"))
	assert.Equal(t, "1119", q.Get("KmenoveCisloParcely"))
	assert.Equal(t, "1", q.Get("PoddeleniCislaParcely"))
	assert.Equal(t, "secret", key)

	assert.Equal(t, "300", rec.Area.String())
	require.NotNil(t, rec.Sheet)
	assert.Equal(t, 42, *rec.Sheet)
	assert.Empty(t, rec.LandType)
	require.Len(t, rec.SoilAreas, 2)
	assert.Equal(t, types.SoilCode("00100"), rec.SoilAreas[0].Code)
	assert.Equal(t, types.SoilCode("75000"), rec.SoilAreas[1].Code)
	assert.Equal(t, "200.5", rec.SoilAreas[1].Area.String())
}

func TestResolveParcelWithoutSoilCodes(t *testing.T) {
	var q url.Values
	c := newServer(t, http.StatusOK, `{"data":[{"vymera": 500, "druhPozemku": {"nazev": "zahrada"}, "bpej": []}]}`, &q, nil)

	rec, err := c.Resolve(context.Background(), mustID(t, "1284"), 1, "k")
	require.NoError(t, err)
	_, hasSub := q["PoddeleniCislaParcely"]
	assert.False(t, hasSub)
	assert.Nil(t, rec.Sheet)
	assert.Equal(t, "zahrada", rec.LandType)
	assert.False(t, rec.HasSoilCodes())
}

func TestResolveDefaultsLandType(t *testing.T) {
	c := newServer(t, http.StatusOK, `{"data":[{"vymera": 10}]}`, nil, nil)
	rec, err := c.Resolve(context.Background(), mustID(t, "5"), 1, "k")
	require.NoError(t, err)
	assert.Equal(t, UnknownLandType, rec.LandType)
}

func TestResolveSheetNumberForms(t *testing.T) {
	tests := []struct {
		name string
		lv   string
		want *int
	}{
		{"number", `{"cislo": 42}`, intPtr(42)},
		{"numeric string", `{"cislo": " 17 "}`, intPtr(17)},
		{"non-numeric string", `{"cislo": "12A"}`, nil},
		{"fraction", `{"cislo": 4.5}`, nil},
		{"null", `{"cislo": null}`, nil},
		{"object", `{"cislo": {"x": 1}}`, nil},
		{"missing", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, http.StatusOK, `{"data":[{"vymera": 10, "lv": `+tt.lv+`}]}`, nil, nil)
			rec, err := c.Resolve(context.Background(), mustID(t, "5"), 1, "k")
			require.NoError(t, err)
			assert.Equal(t, "10", rec.Area.String())
			assert.Equal(t, tt.want, rec.Sheet)
		})
	}
}

func intPtr(n int) *int { return &n }

func TestResolveErrorsCarryContext(t *testing.T) {
	c := newServer(t, http.StatusOK, `{"data":[]}`, nil, nil)
	_, err := c.Resolve(context.Background(), mustID(t, "9"), 654321, "k")
	assert.Equal(t, map[string]interface{}{"cadastral_area": 654321}, errors.ContextOf(err))

	c = newServer(t, http.StatusServiceUnavailable, `down`, nil, nil)
	_, err = c.Resolve(context.Background(), mustID(t, "9"), 1, "k")
	assert.Equal(t, map[string]interface{}{"cadastral_area": 1, "status": 503}, errors.ContextOf(err))
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   errors.Type
	}{
		{"empty data", http.StatusOK, `{"data":[]}`, errors.TypeNotFound},
		{"missing data", http.StatusOK, `{}`, errors.TypeNotFound},
		{"server error", http.StatusInternalServerError, `oops`, errors.TypeTransport},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad key"}`, errors.TypeTransport},
		{"not json", http.StatusOK, `<html>`, errors.TypeParsing},
		{"bad soil code", http.StatusOK, `{"data":[{"vymera":1,"bpej":[{"kod":"x1","vymera":1}]}]}`, errors.TypeParsing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, tt.status, tt.body, nil, nil)
			rec, err := c.Resolve(context.Background(), mustID(t, "7"), 1, "k")
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, errors.IsType(err, tt.want), "got %v", err)
		})
	}
}

func TestResolveTransportFailureIsSingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Resolve(context.Background(), mustID(t, "1"), 1, "k")
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	srv.Close()
	_, err = New(Config{BaseURL: srv.URL}).Resolve(context.Background(), mustID(t, "1"), 1, "k")
	assert.True(t, errors.IsType(err, errors.TypeTransport))
}
