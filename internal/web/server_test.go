package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/features/checkout"
)

const (
	secret   = "s3cret"
	botURL   = "https://t.me/LotBot"
	room     = "5f0c2e7a-1111-4c3b-9a51-000000000001"
	telegram = int64(42)
)

type fakeReturns struct {
	mu      sync.Mutex
	calls   []checkout.Return
	ids     []int64
	ctxs    []context.Context
	outcome checkout.Outcome
}

func (f *fakeReturns) HandleReturn(ctx context.Context, telegramID int64, ret checkout.Return) checkout.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ret)
	f.ids = append(f.ids, telegramID)
	f.ctxs = append(f.ctxs, ctx)
	return f.outcome
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type ctxKey struct{}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(returns ReturnHandler, db Pinger) *gin.Engine {
	appCtx := context.WithValue(context.Background(), ctxKey{}, "app")
	return NewRouter(returns, db, Options{
		AppCtx:      appCtx,
		Secret:      secret,
		RedirectURL: botURL,
		Gatherer:    prometheus.NewRegistry(),
	})
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCheckoutReturn_SignedSuccess(t *testing.T) {
	returns := &fakeReturns{outcome: checkout.Polling}
	r := newRouter(returns, nil)

	link, err := checkout.BuildReturnURL("http://bot.local/checkout/return", secret, telegram, room, "cs_1")
	require.NoError(t, err)
	w := get(r, strings.TrimPrefix(link, "http://bot.local"))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, botURL, w.Header().Get("Location"))
	assert.Equal(t, "polling", w.Header().Get(OutcomeHeader))

	require.Len(t, returns.calls, 1)
	assert.Equal(t, checkout.KindSuccess, returns.calls[0].Kind)
	assert.Equal(t, "cs_1", returns.calls[0].SessionID)
	assert.Equal(t, telegram, returns.ids[0])
	assert.Equal(t, "app", returns.ctxs[0].Value(ctxKey{}), "опрос идёт на контексте приложения")
}

func TestCheckoutReturn_Rejections(t *testing.T) {
	returns := &fakeReturns{}
	r := newRouter(returns, nil)
	sig := checkout.Sign(secret, telegram, room)

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"bad signature", "/checkout/return?room_success=true&session_id=cs&room_id=" + room + "&tg=42&sig=deadbeef", http.StatusForbidden},
		{"foreign user", "/checkout/return?room_success=true&session_id=cs&room_id=" + room + "&tg=43&sig=" + sig, http.StatusForbidden},
		{"missing tg", "/checkout/return?room_success=true&session_id=cs&room_id=" + room + "&sig=" + sig, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.target)
			assert.Equal(t, tt.code, w.Code)
		})
	}
	assert.Empty(t, returns.calls)
}

func TestCheckoutReturn_NoParamsRedirects(t *testing.T) {
	returns := &fakeReturns{}
	w := get(newRouter(returns, nil), "/checkout/return")

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "ignored", w.Header().Get(OutcomeHeader))
	assert.Empty(t, returns.calls)
}

func TestCheckoutReturn_Canceled(t *testing.T) {
	returns := &fakeReturns{outcome: checkout.Canceled}
	sig := checkout.Sign(secret, telegram, room)

	w := get(newRouter(returns, nil), "/checkout/return?room_canceled=true&room_id="+room+"&tg=42&sig="+sig)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "canceled", w.Header().Get(OutcomeHeader))
	require.Len(t, returns.calls, 1)
	assert.Equal(t, checkout.KindCanceled, returns.calls[0].Kind)
}

func TestHealthz(t *testing.T) {
	w := get(newRouter(&fakeReturns{}, fakePinger{}), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(newRouter(&fakeReturns{}, fakePinger{err: errors.New("down")}), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz_ReturnStore(t *testing.T) {
	opts := Options{Secret: secret, RedirectURL: botURL}

	opts.Store = fakePinger{}
	w := get(NewRouter(&fakeReturns{}, fakePinger{}, opts), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	opts.Store = fakePinger{err: errors.New("redis down")}
	w = get(NewRouter(&fakeReturns{}, fakePinger{}, opts), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "return store unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(newRouter(&fakeReturns{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := get(r, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
