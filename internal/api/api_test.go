package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/account"
	"github.com/sells-group/bid-intel/internal/config"
	"github.com/sells-group/bid-intel/internal/estimator"
	"github.com/sells-group/bid-intel/internal/ingest"
	"github.com/sells-group/bid-intel/internal/pricing"
	"github.com/sells-group/bid-intel/internal/resilience"
	"github.com/sells-group/bid-intel/internal/sheet"
	"github.com/sells-group/bid-intel/internal/store"
)

const (
	freeToken = "free-token"
	proToken  = "pro-token"
)

var fixtureRows = [][]string{
	{"Contract", "Letting Date", "County", "District", "Item Number", "Description", "Unit", "Qty", "Unit Price", "Bidder"},
	{"C1", "2023-03-10", "Cook", "1", "40600100", "HMA SURFACE", "TON", "100", "80", "Acme Paving"},
	{"C1", "2023-03-10", "Cook", "1", "40600100", "HMA SURFACE", "TON", "100", "90", "Beta Builders"},
	{"C1", "2023-03-10", "Cook", "1", "40600200", "PRIME COAT", "GAL", "50", "10", "Acme Paving"},
	{"C1", "2023-03-10", "Cook", "1", "40600200", "PRIME COAT", "GAL", "50", "12", "Beta Builders"},
	{"C2", "2024-02-01", "Cook", "1", "40600100", "HMA SURFACE", "TON", "300", "60", "Beta Builders"},
	{"C2", "2024-02-01", "Cook", "1", "40600100", "HMA SURFACE", "TON", "300", "65", "Acme Paving"},
	{"C3", "2024-06-15", "Lake", "2", "40600100", "HMA SURFACE", "TON", "100", "100", "Acme Paving"},
}

type testEnv struct {
	router http.Handler
	st     *store.SQLiteStore
	accts  *account.Service
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{MaxUploadMB: 1, CORSOrigins: []string{"*"}},
		Pricing: config.PricingConfig{WinningBidsOnly: true, MaxResults: 100, RecentBids: 20},
		Access: config.AccessConfig{
			Anonymous: config.TierLimits{ResultsPerQuery: 2},
			Free:      config.TierLimits{DailyQuota: 2, ResultsPerQuery: 3},
			Pro:       config.TierLimits{ResultsPerQuery: 100, Estimator: true},
		},
		Estimator: config.EstimatorConfig{MaxItems: 300, Concurrency: 4},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test adjust the router deps before the router is
// built.
func newTestEnvWith(t *testing.T, adjust func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bids.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	bids, _, err := ingest.Parse(fixtureRows)
	require.NoError(t, err)
	_, err = st.InsertBids(ctx, bids)
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	for i, u := range []struct{ email, tier, status, token string }{
		{"free@example.com", "free", "none", freeToken},
		{"pro@example.com", "pro", "active", proToken},
	} {
		_, err := st.Querier().Exec(ctx,
			`INSERT INTO users (id, email, tier, subscription_status) VALUES (?, ?, ?, ?)`,
			i+1, u.email, u.tier, u.status)
		require.NoError(t, err)
		_, err = st.Querier().Exec(ctx,
			`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`, u.token, i+1, expires)
		require.NoError(t, err)
	}

	cfg := testConfig()
	accts := account.New(st.Querier())
	engine := pricing.New(st.Querier(), pricing.Options{
		WinningBidsOnly: cfg.Pricing.WinningBidsOnly,
		MaxResults:      cfg.Pricing.MaxResults,
	})

	deps := Deps{
		Engine:  engine,
		Gate:    access.NewGate(cfg.Access, accts),
		Callers: accts,
		Estimator: estimator.New(engine, estimator.Options{
			MaxItems:    cfg.Estimator.MaxItems,
			Concurrency: cfg.Estimator.Concurrency,
		}),
		Server:  cfg.Server,
		Pricing: cfg.Pricing,
		Driver:  "sqlite",
	}
	if adjust != nil {
		adjust(&deps)
	}
	return &testEnv{router: NewRouter(deps), st: st, accts: accts}
}

func (e *testEnv) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, reason string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, reason, body["reason"])
	assert.NotEmpty(t, body["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	decode(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(7), body["bid_rows"])
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]any
	rr := env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &body)
	assert.Equal(t, "sqlite", body["driver"])
	assert.Equal(t, true, body["winning_bids_only"])
	assert.Equal(t, float64(100), body["max_results"])
	assert.NotContains(t, body, "store_circuit")
}

func TestStatus_ReportsStoreCircuit(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	tk, err := b.Allow()
	require.NoError(t, err)
	b.Record(tk, fmt.Errorf("dial: %w", syscall.ECONNREFUSED))

	env := newTestEnvWith(t, func(d *Deps) { d.Breaker = b })

	var body map[string]any
	rr := env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &body)
	assert.Equal(t, "closed", body["store_circuit"])
	assert.Equal(t, float64(1), body["store_failures"])

	tk, err = b.Allow()
	require.NoError(t, err)
	b.Record(tk, fmt.Errorf("dial: %w", syscall.ECONNREFUSED))

	rr = env.do(t, http.MethodGet, "/api/status", "")
	decode(t, rr, &body)
	assert.Equal(t, "open", body["store_circuit"])
	assert.Equal(t, float64(2), body["store_failures"])
}

func TestCORS_CredentialsOnlyForListedOrigins(t *testing.T) {
	const origin = "https://estimates.example.com"
	get := func(env *testEnv) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		return rr
	}

	rr := get(newTestEnv(t))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))

	listed := newTestEnvWith(t, func(d *Deps) { d.Server.CORSOrigins = []string{origin} })
	rr = get(listed)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSearchPayItem(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search/pay-item/4060010?exact=false", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body payItemResponse
	decode(t, rr, &body)
	require.NotNil(t, body.Item)
	assert.Equal(t, "40600100", body.Item.ItemNumber)
	require.NotNil(t, body.Item.WeightedAvgPrice)
	assert.InDelta(t, 72.0, *body.Item.WeightedAvgPrice, 1e-9)
	assert.Equal(t, 3, body.Item.BidCount)
	assert.True(t, body.WinnersOnly)

	require.Len(t, body.YearlyTrend, 2)
	assert.Equal(t, "2023", body.YearlyTrend[0].Key)

	assert.Len(t, body.RecentBids, 2, "anonymous callers are capped at two rows")
	assert.Equal(t, "C3", body.RecentBids[0].ContractNumber)
	assert.Equal(t, 2, body.Access.ResultCap)
	assert.Nil(t, body.Access.Remaining)
}

func TestSearchPayItem_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search/pay-item/99999999?exact=true", "")
	assertError(t, rr, http.StatusNotFound, "not_found")
}

func TestSearchPayItem_InvalidParamsNotCharged(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search/pay-item/40600100?yearStart=abc", freeToken)
	assertError(t, rr, http.StatusBadRequest, "validation_error")

	rr = env.do(t, http.MethodGet, "/api/search/pay-item/40600100?yearStart=2024&yearEnd=2020", freeToken)
	assertError(t, rr, http.StatusBadRequest, "validation_error")

	n, err := env.accts.Count(context.Background(), 1, access.Day(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFreeQuota(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodGet, "/api/search/contract/C1", freeToken)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/api/search/contract/C1", freeToken)
	assertError(t, rr, http.StatusTooManyRequests, "quota_exceeded")

	rr = env.do(t, http.MethodGet, "/api/search/contract/C1", proToken)
	assert.Equal(t, http.StatusOK, rr.Code, "pro searches are not counted")

	rr = env.do(t, http.MethodGet, "/api/account/limits", freeToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var limits limitsResponse
	decode(t, rr, &limits)
	assert.Equal(t, access.FreeAuthenticated, limits.Limits.State)
	require.NotNil(t, limits.Remaining)
	assert.Equal(t, 0, *limits.Remaining)
	require.NotNil(t, limits.Caller)
	assert.Equal(t, "free@example.com", limits.Caller.Email)
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/account/limits", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: proToken})
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var limits limitsResponse
	decode(t, rr, &limits)
	assert.Equal(t, access.ProActive, limits.Limits.State)
	assert.Nil(t, limits.Remaining)
}

func TestUnknownTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/account/limits", "nope")
	require.Equal(t, http.StatusOK, rr.Code)
	var limits limitsResponse
	decode(t, rr, &limits)
	assert.Equal(t, access.Anonymous, limits.Limits.State)
	assert.Nil(t, limits.Caller)
}

func TestSearchContract(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search/contract/C1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var detail pricing.ContractDetail
	decode(t, rr, &detail)
	require.Len(t, detail.Bidders, 2)
	assert.Equal(t, "Acme Paving", detail.Bidders[0].Name)
	require.Len(t, detail.Items, 2)
	assert.Len(t, detail.Items[0].Bids, 2)

	rr = env.do(t, http.MethodGet, "/api/search/contract/NOPE", "")
	assertError(t, rr, http.StatusNotFound, "not_found")
}

func TestSearchContractor(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search/contractor/acme?limit=10", proToken)
	require.Equal(t, http.StatusOK, rr.Code)

	var body contractorResponse
	decode(t, rr, &body)
	require.NotNil(t, body.Stats)
	assert.Equal(t, 3, body.Stats.ContractsBid)
	assert.Equal(t, 2, body.Stats.ContractsWon)
	assert.Len(t, body.Bids, 3)
	assert.True(t, body.Access.IsPro)
}

func TestItemSummary(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/pricing/item-summary?minOccurrences=2", proToken)
	require.Equal(t, http.StatusOK, rr.Code)

	var body itemSummaryResponse
	decode(t, rr, &body)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "40600100", body.Items[0].ItemNumber)
	assert.Equal(t, 2, body.MinOccurrences)
}

func TestGeoComparison(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/pricing/district-comparison/40600100", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body pricing.GeoComparison
	decode(t, rr, &body)
	assert.Equal(t, pricing.DimDistrict, body.Dimension)
	require.NotNil(t, body.Overall)
	assert.Empty(t, body.Groups, "no district has three winning bids")

	rr = env.do(t, http.MethodGet, "/api/pricing/county-comparison/40600100?yearStart=x", "")
	assertError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/analytics/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var o pricing.Overview
	decode(t, rr, &o)
	assert.Equal(t, 3, o.TotalContracts)
	assert.Equal(t, 2, o.UniqueContractors)

	rr = env.do(t, http.MethodGet, "/api/analytics/contractors/top?minContracts=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var top struct {
		Contractors []pricing.ContractorRank `json:"contractors"`
	}
	decode(t, rr, &top)
	require.Len(t, top.Contractors, 2)
	assert.Equal(t, "Acme Paving", top.Contractors[0].BidderName)

	rr = env.do(t, http.MethodGet, "/api/analytics/counties", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"county":"Cook"`)
}

func TestListContracts_TierCap(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/contracts?limit=50", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Contracts []pricing.ContractRow `json:"contracts"`
		Total     int                   `json:"total"`
		Limit     int                   `json:"limit"`
	}
	decode(t, rr, &body)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Limit)
	assert.Len(t, body.Contracts, 2)

	rr = env.do(t, http.MethodGet, "/api/contracts?county=lake&year=2024", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &body)
	assert.Equal(t, 1, body.Total)

	rr = env.do(t, http.MethodGet, "/api/contractors?offset=1", proToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":2`)
}

func uploadRequest(t *testing.T, token string, rows [][]string, fields map[string]string) *http.Request {
	t.Helper()
	wb := sheet.NewWorkbook()
	s, err := wb.AddSheet("Items")
	require.NoError(t, err)
	for _, r := range rows {
		vals := make([]any, len(r))
		for i, v := range r {
			vals[i] = v
		}
		s.AddRow(vals...)
	}
	data, err := wb.Bytes()
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "items.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/estimator/price-items", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestPriceItems(t *testing.T) {
	env := newTestEnv(t)

	req := uploadRequest(t, proToken, [][]string{
		{"Item Number", "Description", "Quantity", "Unit"},
		{"40600100", "", "10", ""},
		{"NOPE", "", "1", ""},
	}, map[string]string{"districts": "1", "yearStart": "2023"})
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Equal(t, "2", rr.Header().Get("X-Estimator-Items-Requested"))
	assert.Equal(t, "1", rr.Header().Get("X-Estimator-Items-Priced"))
	assert.Equal(t, "1", rr.Header().Get("X-Estimator-Items-Not-Found"))
	// District 1 winners: Acme 80 x 100 and Beta 60 x 300, so 26000 / 400 = 65.
	assert.Equal(t, "650.00", rr.Header().Get("X-Estimator-Total-Value"))
	assert.NotEmpty(t, rr.Header().Get("X-Estimator-Run-Id"))

	f, err := xlsx.OpenBinary(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "HMA SURFACE", f.Sheets[0].Rows[1].Cells[1].String())
}

func TestPriceItems_RequiresPro(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", freeToken} {
		req := uploadRequest(t, token, [][]string{{"40600100", "", "1"}}, nil)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		assertError(t, rr, http.StatusForbidden, "access_denied")
	}
}

func TestPriceItems_BadUploads(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/estimator/price-items", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+proToken)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assertError(t, rr, http.StatusBadRequest, "validation_error")

	req = uploadRequest(t, proToken, [][]string{{"Item Number"}}, nil)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assertError(t, rr, http.StatusBadRequest, "validation_error")

	rows := make([][]string, 301)
	for i := range rows {
		rows[i] = []string{"40600100", "", "1"}
	}
	req = uploadRequest(t, proToken, rows, nil)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assertError(t, rr, http.StatusBadRequest, "too_many_items")
}

func TestTemplate(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/estimator/template", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "bulk-pricing-template.xlsx")
	assert.NotEmpty(t, rr.Body.Bytes())
}

func TestStoreFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.st.Close())

	rr := env.do(t, http.MethodGet, "/api/analytics/summary", "")
	assertError(t, rr, http.StatusInternalServerError, "store_unavailable")
	assert.Contains(t, rr.Body.String(), "internal server error")
	assert.NotContains(t, rr.Body.String(), "closed")

	rr = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", sessionToken(req))

	req.Header.Set("Authorization", "bearer abc ")
	assert.Equal(t, "abc", sessionToken(req))

	req.Header.Set("Authorization", "Basic xyz")
	assert.Equal(t, "", sessionToken(req))

	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", sessionToken(req))
}
