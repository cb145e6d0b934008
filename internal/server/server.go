// Package server 基金 HTTP API：查询、买卖、管理参数、事件流（WebSocket）以及模拟模式下的水龙头。
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/betbot/sharefund/internal/journal"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var serverLog = logrus.WithField("component", "server")

// AdminKeyHeader 管理接口鉴权头；持有者以当前 owner 身份调用
const AdminKeyHeader = "X-Admin-Key"

// Journal 事件流水与权益快照的只读视图
type Journal interface {
	ListEvents(ctx context.Context, f journal.EventFilter) ([]journal.EventRecord, error)
	ListEquitySnapshots(ctx context.Context, limit int) ([]journal.EquitySnapshot, error)
}

type Config struct {
	Fund     *fund.Fund
	Journal  Journal
	Hub      *Hub
	AdminKey string
	// Faucet 为 nil 时不注册 /api/sim
	Faucet Faucet
}

type Server struct {
	cfg Config
}

func New(cfg Config) (*Server, error) {
	if cfg.Fund == nil {
		return nil, errors.New("fund is required")
	}
	if cfg.AdminKey == "" {
		return nil, errors.New("admin key is required")
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	return &Server{cfg: cfg}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")
	api.GET("/fund", s.wrap(s.handleFund))
	api.GET("/holders/:address", s.wrap(s.handleHolder))
	api.POST("/buy", s.wrap(s.handleBuy))
	api.POST("/sell", s.wrap(s.handleSell))
	api.GET("/events", s.wrap(s.handleEvents))
	api.GET("/events/ws", s.wrap(s.cfg.Hub.ServeWS))
	api.GET("/equity/snapshots", s.wrap(s.handleEquitySnapshots))

	admin := api.Group("/admin", s.requireAdmin)
	admin.PUT("/min-investment", s.wrap(s.handleSetMinInvestment))
	admin.PUT("/buy-fee", s.wrap(s.handleSetBuyFee))
	admin.PUT("/sell-fee", s.wrap(s.handleSetSellFee))
	admin.PUT("/fee-collector", s.wrap(s.handleSetFeeCollector))
	admin.PUT("/owner", s.wrap(s.handleTransferOwnership))
	admin.PUT("/venue/receipt", s.wrap(s.handleSetReceipt))
	admin.POST("/venue/deposit", s.wrap(s.handleVenueDeposit))
	admin.POST("/venue/withdraw", s.wrap(s.handleVenueWithdraw))

	if s.cfg.Faucet != nil {
		sim := api.Group("/sim")
		sim.POST("/mint", s.wrap(s.handleSimMint))
		sim.POST("/accrue", s.wrap(s.handleSimAccrue))
	}
	return r
}

// Start 非阻塞启动 HTTP 服务，ctx.Done() 时优雅关闭
func (s *Server) Start(ctx context.Context, listenAddr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	hs := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLog.Errorf("http server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.cfg.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()
	serverLog.Infof("HTTP API 已启动: %s", ln.Addr())
	return hs, nil
}

func (s *Server) requireAdmin(c *gin.Context) {
	key := c.GetHeader(AdminKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
		writeError(c.Writer, http.StatusUnauthorized, "invalid admin key")
		c.Abort()
		return
	}
	c.Next()
}

type paramsKeyType string

const paramsKey paramsKeyType = "sharefund_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func queryLimit(r *http.Request, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFundError 把基金错误映射成 HTTP 状态码
func writeFundError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fund.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case fund.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fund.ErrReentrantCall):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fund.ErrTransferFailed), errors.Is(err, fund.ErrVenueFailed), errors.Is(err, fund.ErrVenueShortfall):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
