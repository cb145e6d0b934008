package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusFunc 返回基金当前状态，/debug/fund 以 JSON 输出
type StatusFunc func(ctx context.Context) (any, error)

// ReconcileCounters 提交后无法回滚、需要人工对账的计数
func ReconcileCounters() map[string]int64 {
	return map[string]int64{
		"venue_sweep_failures":  VenueSweepFailures.Value(),
		"fee_transfer_failures": FeeTransferFailures.Value(),
	}
}

func newMux(status StatusFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	if status != nil {
		mux.Handle("/debug/fund", statusHandler(status))
	}

	// pprof：显式注册到我们的 mux，避免依赖 DefaultServeMux 的全局副作用
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// statusHandler 读取基金状态；协作方读失败（RPC 不可用）返回 503
func statusHandler(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		v, err := status(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(v)
	}
}

// StartAsync 启动 metrics/debug 服务（非阻塞），ctx.Done() 时优雅关闭：
// - expvar: /debug/vars（基金计数器）
// - fund:   /debug/fund（status 非空时）
// - pprof:  /debug/pprof
// 建议仅监听 localhost 或内网。
func StartAsync(ctx context.Context, listenAddr string, status StatusFunc) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	s := &http.Server{
		Addr:              listenAddr,
		Handler:           newMux(status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log := logrus.WithField("component", "metrics")
	log.Infof("debug 服务监听 %s", ln.Addr())

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("debug server stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	return s, nil
}
