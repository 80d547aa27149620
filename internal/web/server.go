// Package web — HTTP-часть бота: возврат из оплаты, health-check и метрики.
//
// Касса после оплаты отправляет браузер на /checkout/return с подписанной
// парой (tg, room_id). Обработчик запускает опрос в фоне и сразу уводит
// браузер обратно в Telegram.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/features/checkout"
)

// OutcomeHeader — заголовок с результатом приёма возврата (для отладки кассы).
const OutcomeHeader = "X-Checkout-Outcome"

// ReturnHandler принимает возврат из оплаты.
type ReturnHandler interface {
	HandleReturn(ctx context.Context, telegramID int64, ret checkout.Return) checkout.Outcome
}

// Pinger проверяет доступность БД.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options — настройки роутера.
type Options struct {
	// AppCtx живёт дольше запроса: на нём идёт фоновый опрос
	AppCtx      context.Context
	Secret      string
	RedirectURL string
	Gatherer    prometheus.Gatherer
	// Store — хранилище обработанных возвратов (Redis). nil, если оно в памяти
	Store Pinger
}

type handler struct {
	returns ReturnHandler
	db      Pinger
	opts    Options
}

// NewRouter собирает gin-роутер.
func NewRouter(returns ReturnHandler, db Pinger, opts Options) *gin.Engine {
	if opts.AppCtx == nil {
		opts.AppCtx = context.Background()
	}
	h := &handler{returns: returns, db: db, opts: opts}

	r := gin.New()
	r.Use(Recovery(), Logger())

	r.GET("/checkout/return", h.checkoutReturn)
	r.GET("/healthz", h.healthz)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *handler) checkoutReturn(c *gin.Context) {
	ret := checkout.ParseReturn(c.Request.URL.Query())
	if ret.Kind == checkout.KindNone {
		c.Header(OutcomeHeader, checkout.Ignored.String())
		c.Redirect(http.StatusSeeOther, h.opts.RedirectURL)
		return
	}

	telegramID, err := strconv.ParseInt(c.Query(checkout.ParamTelegram), 10, 64)
	if err != nil || telegramID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный tg"})
		return
	}
	if !checkout.VerifySignature(h.opts.Secret, telegramID, ret.RoomID, c.Query(checkout.ParamSignature)) {
		log.WithFields(log.Fields{
			"component": "web",
			"user_id":   telegramID,
			"room_id":   ret.RoomID,
		}).Warn("Возврат из оплаты с неверной подписью")
		c.JSON(http.StatusForbidden, gin.H{"error": "неверная подпись"})
		return
	}

	outcome := h.returns.HandleReturn(h.opts.AppCtx, telegramID, ret)
	c.Header(OutcomeHeader, outcome.String())
	c.Redirect(http.StatusSeeOther, h.opts.RedirectURL)
}

func (h *handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
	}
	if h.opts.Store != nil {
		if err := h.opts.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "return store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Server — HTTP-сервер с мягкой остановкой.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run слушает до отмены ctx, затем даёт запросам 5 секунд на завершение.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP-сервер запущен")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP-сервер остановлен")
	return nil
}
