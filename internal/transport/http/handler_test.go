package httptransport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage/memory"
)

func newTestHandler() *Handler {
	store := memory.NewStore()
	mailboxes := service.NewMailboxService(store, []string{"example.test"}, map[domain.OwnerClass]time.Duration{
		domain.OwnerClassAnonymous: 24 * time.Hour,
		domain.OwnerClassOwned:     365 * 24 * time.Hour,
	}, zap.NewNop())
	emails := service.NewEmailService(store, store, nil, zap.NewNop())
	return NewHandler(mailboxes, emails, store)
}

func TestHandler_ResolveMailbox(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler()

	router := gin.New()
	router.POST("/api/mailboxes", h.resolveMailbox)

	resolve := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/mailboxes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("首次解析返回201", func(t *testing.T) {
		w := resolve(`{"address":"fresh@example.test"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("重复解析是幂等读取返回200", func(t *testing.T) {
		w := resolve(`{"address":"fresh@example.test"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("域名不受理返回400", func(t *testing.T) {
		w := resolve(`{"address":"x@other.com"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("缺少地址返回400", func(t *testing.T) {
		w := resolve(`{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
