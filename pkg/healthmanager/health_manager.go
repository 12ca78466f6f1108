package healthmanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

// ReadinessChecker reports whether the component behind the probe is ready.
type ReadinessChecker interface {
	Ready() bool
}

type HealthManager struct {
	mu      sync.RWMutex
	monitor ReadinessChecker
	port    int
	srv     *http.Server
}

func NewHealthManager(port int) *HealthManager {
	h := &HealthManager{port: port}
	h.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h.handler(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	return h
}

func (h *HealthManager) SetMonitor(monitor ReadinessChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.monitor = monitor
}

func (h *HealthManager) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", h.livenessProbe)
	mux.HandleFunc("/readyz", h.readinessProbe)
	return mux
}

func (h *HealthManager) Start(ctx context.Context) {
	go func() {
		logger.L().Info("starting health manager", helpers.Int("port", h.port))
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Ctx(ctx).Fatal("failed to start health manager", helpers.Error(err), helpers.Int("port", h.port))
		}
	}()
}

func (h *HealthManager) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *HealthManager) livenessProbe(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *HealthManager) readinessProbe(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	monitor := h.monitor
	h.mu.RUnlock()
	if monitor != nil && monitor.Ready() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
}
