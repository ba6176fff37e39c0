package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	router := gin.New()
	router.GET("/test", h)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		Success(c, gin.H{"status": "premium"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "premium", data["status"])
}

func TestSuccessWithMessage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessWithMessage(c, "试用已开启", nil)
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "试用已开启", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name        string
		handler     func(c *gin.Context, message string)
		wantStatus  int
		wantCode    int
		wantMessage string
	}{
		{"param", ParamError, http.StatusOK, CodeParamError, "参数错误"},
		{"auth", AuthError, http.StatusOK, CodeAuthFailed, "认证失败"},
		{"not found", NotFoundError, http.StatusOK, CodeResourceNotFound, "资源不存在"},
		{"server", ServerError, http.StatusOK, CodeServerError, "服务器内部错误"},
		{"precondition", PreconditionError, http.StatusBadRequest, CodePreconditionFailed, "缺少设备标识"},
		{"rate limited", RateLimitError, http.StatusTooManyRequests, CodeRateLimited, "请求过于频繁"},
		{"transition", TransitionError, http.StatusOK, CodeInvalidTransition, "当前订阅状态不允许该操作"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" default message", func(t *testing.T) {
			w, resp := serve(t, func(c *gin.Context) { tt.handler(c, "") })
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Nil(t, resp.Data)
		})

		t.Run(tt.name+" custom message", func(t *testing.T) {
			_, resp := serve(t, func(c *gin.Context) { tt.handler(c, "custom") })
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, "custom", resp.Message)
		})
	}
}

func TestVerificationErrors(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		VerificationError(c, "product id mismatch", gin.H{"verified": false})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeVerificationFailed, resp.Code)
	assert.Equal(t, "product id mismatch", resp.Message)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["verified"])

	w, resp = serve(t, func(c *gin.Context) {
		VerificationTimeoutError(c, "", nil)
	})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, CodeVerificationTimeout, resp.Code)
	assert.Equal(t, "收据校验超时，请稍后重试", resp.Message)
}

func TestAbortWithError(t *testing.T) {
	router := gin.New()
	reached := false
	router.GET("/test", func(c *gin.Context) {
		AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "")
	}, func(c *gin.Context) {
		reached = true
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestError_UnknownCode(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		Error(c, 9999, "")
	})

	assert.Equal(t, 9999, resp.Code)
	assert.Empty(t, resp.Message)
}
