package logger_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"order-tracking-service/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequestID(t *testing.T) {
	assert.Equal(t, "unknown", logger.RequestID(context.Background()))
	assert.Equal(t, "abc", logger.RequestID(logger.WithContext(context.Background(), "abc")))

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "unknown", logger.RequestID(c))
	c.Set(logger.RequestIDKey, "req-1")
	assert.Equal(t, "req-1", logger.RequestID(c))
}

func TestInitializeWithWriter_TeesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("production", &buf)
	defer func() { logger.Log = zap.NewNop() }()

	logger.Error(logger.WithContext(context.Background(), "r-9"), "order update failed", errors.New("conn reset"), zap.String("order_id", "o-1"))
	_ = logger.Log.Sync()

	out := buf.String()
	assert.True(t, strings.Contains(out, `"msg":"order update failed"`), out)
	assert.Contains(t, out, `"request_id":"r-9"`)
	assert.Contains(t, out, `"order_id":"o-1"`)
	assert.Contains(t, out, `"error":"conn reset"`)
}
