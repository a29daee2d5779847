package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"dropmail/backend/internal/storage"
)

// Pinger 可探活的外部依赖（Redis 缓存等）。
type Pinger interface {
	Health() error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	// 存储连接检查
	hc.health.AddLivenessCheck("store", func() error {
		return hc.store.Health()
	})

	return hc
}

// AddCheck 注册额外的存活检查。
func (hc *HealthChecker) AddCheck(name string, pinger Pinger) {
	hc.health.AddLivenessCheck(name, func() error {
		return pinger.Health()
	})
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["store"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["store"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
