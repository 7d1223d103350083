package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-manager/internal/config"
	"fund-manager/internal/messaging"
	"fund-manager/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type published struct {
	payload interface{}
	action  messaging.TriggerAction
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, payload interface{}, action messaging.TriggerAction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{payload: payload, action: action})
	return p.err
}

type fakeSource struct {
	summary models.FundSummaryData
	funds   []models.Fund
}

func (s *fakeSource) Current() models.FundSummaryData { return s.summary }
func (s *fakeSource) Funds() []models.Fund            { return s.funds }

type fakeFeed struct {
	updates chan models.FundSummaryData
	err     error
}

func (f *fakeFeed) Subscribe(ctx context.Context) (<-chan models.FundSummaryData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.updates, nil
}

func summaryWithTotal(value int64) models.FundSummaryData {
	all := models.SummaryData{
		TotalStockCount:  decimal.NewFromInt(1),
		TotalMarketValue: decimal.NewFromInt(value),
		TotalStockWeight: decimal.NewFromInt(100),
	}
	return models.FundSummaryData{Equity: all, All: all}
}

func newTestRouter(publisher *fakePublisher, source *fakeSource, feed *fakeFeed) *gin.Engine {
	cfg := config.GatewayConfig{RequestTimeout: time.Second, PingInterval: time.Second}
	h := NewHandler(cfg, publisher, source, feed, testLogger())
	return NewRouter(cfg, h, testLogger())
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakePublisher{}, &fakeSource{}, &fakeFeed{})

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAddFund(t *testing.T) {
	publisher := &fakePublisher{}
	router := newTestRouter(publisher, &fakeSource{}, &fakeFeed{})

	body := `{"purchaseInfo":{"unitPrice":"12.5","purchasedQ":8},"type":"Equity"}`
	w := doRequest(router, http.MethodPost, "/api/funds", body)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, publisher.calls, 1)
	assert.Equal(t, messaging.AddFund, publisher.calls[0].action)

	stock, ok := publisher.calls[0].payload.(models.Stock)
	require.True(t, ok)
	assert.Equal(t, models.StockTypeEquity, stock.Type)
	assert.True(t, decimal.NewFromFloat(12.5).Equal(stock.PurchaseInfo.UnitPrice))
}

func TestAddFund_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"type":`},
		{name: "unknown type", body: `{"purchaseInfo":{"unitPrice":1,"purchasedQ":1},"type":"Crypto"}`},
		{name: "zero quantity", body: `{"purchaseInfo":{"unitPrice":1,"purchasedQ":0},"type":"Bond"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			router := newTestRouter(publisher, &fakeSource{}, &fakeFeed{})

			w := doRequest(router, http.MethodPost, "/api/funds", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, publisher.calls)
		})
	}
}

func TestAddFund_PublishErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not started", err: messaging.ErrNotStarted, status: http.StatusServiceUnavailable},
		{name: "unsupported", err: &messaging.UnsupportedActionError{Action: "Nope"}, status: http.StatusBadRequest},
		{name: "timeout", err: fmt.Errorf("publish: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "broker", err: errors.New("channel closed"), status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakePublisher{err: tt.err}, &fakeSource{}, &fakeFeed{})

			body := `{"purchaseInfo":{"unitPrice":1,"purchasedQ":1},"type":"Bond"}`
			w := doRequest(router, http.MethodPost, "/api/funds", body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestDownloadFunds(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		size   int
	}{
		{name: "empty body uses default", body: "", status: http.StatusAccepted, size: 0},
		{name: "explicit size", body: `{"datasetSize":25}`, status: http.StatusAccepted, size: 25},
		{name: "size above limit", body: `{"datasetSize":5000}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			router := newTestRouter(publisher, &fakeSource{}, &fakeFeed{})

			w := doRequest(router, http.MethodPost, "/api/funds/download", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			if tt.status != http.StatusAccepted {
				assert.Empty(t, publisher.calls)
				return
			}
			require.Len(t, publisher.calls, 1)
			assert.Equal(t, messaging.DownloadFund, publisher.calls[0].action)
			assert.Equal(t, models.DownloadFundsRequest{DatasetSize: tt.size}, publisher.calls[0].payload)
		})
	}
}

func TestGetSummaryAndFunds(t *testing.T) {
	source := &fakeSource{
		summary: summaryWithTotal(250),
		funds:   []models.Fund{{Name: "Equity1"}, {Name: "Bond1"}},
	}
	router := newTestRouter(&fakePublisher{}, source, &fakeFeed{})

	w := doRequest(router, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.FundSummaryData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.True(t, decimal.NewFromInt(250).Equal(summary.All.TotalMarketValue))

	w = doRequest(router, http.MethodGet, "/api/funds", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Funds []models.Fund `json:"funds"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Count)
	assert.Equal(t, "Bond1", listing.Funds[1].Name)
}

func TestSummaryStream(t *testing.T) {
	feed := &fakeFeed{updates: make(chan models.FundSummaryData, 1)}
	source := &fakeSource{summary: summaryWithTotal(100)}
	server := httptest.NewServer(newTestRouter(&fakePublisher{}, source, feed))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/summary"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first models.FundSummaryData
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, decimal.NewFromInt(100).Equal(first.All.TotalMarketValue))

	feed.updates <- summaryWithTotal(300)

	var next models.FundSummaryData
	require.NoError(t, conn.ReadJSON(&next))
	assert.True(t, decimal.NewFromInt(300).Equal(next.All.TotalMarketValue))
}

func TestSummaryStream_FeedUnavailable(t *testing.T) {
	router := newTestRouter(&fakePublisher{}, &fakeSource{}, &fakeFeed{err: errors.New("redis down")})

	w := doRequest(router, http.MethodGet, "/ws/summary", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no restriction", origin: "http://any.example", want: true},
		{name: "allowed", allowed: []string{"http://app.example"}, origin: "http://app.example", want: true},
		{name: "denied", allowed: []string{"http://app.example"}, origin: "http://evil.example", want: false},
		{name: "no origin header", allowed: []string{"http://app.example"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/summary", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(req))
		})
	}
}
