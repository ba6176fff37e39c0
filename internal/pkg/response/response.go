package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodeResourceNotFound = 1003

	CodePreconditionFailed  = 1006
	CodeRateLimited         = 1007
	CodeVerificationFailed  = 1008
	CodeInvalidTransition   = 1009
	CodeServerError         = 5000
	CodeVerificationTimeout = 5001
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodeResourceNotFound: "资源不存在",

	CodePreconditionFailed:  "缺少设备标识",
	CodeRateLimited:         "请求过于频繁",
	CodeVerificationFailed:  "收据校验失败",
	CodeInvalidTransition:   "当前订阅状态不允许该操作",
	CodeServerError:         "服务器内部错误",
	CodeVerificationTimeout: "收据校验超时，请稍后重试",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithStatus(c, http.StatusOK, code, message)
}

// ErrorWithStatus 需要客户端按 HTTP 状态码区分处理的错误（限流、前置条件）
func ErrorWithStatus(c *gin.Context, httpStatus, code int, message string) {
	errorWithData(c, httpStatus, code, message, nil)
}

func errorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// AbortWithError 中间件使用，写入响应后终止后续处理
func AbortWithError(c *gin.Context, httpStatus, code int, message string) {
	ErrorWithStatus(c, httpStatus, code, message)
	c.Abort()
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeParamError]
	}
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeAuthFailed]
	}
	Error(c, CodeAuthFailed, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeResourceNotFound]
	}
	Error(c, CodeResourceNotFound, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeServerError]
	}
	Error(c, CodeServerError, message)
}

// PreconditionError 缺少设备标识等前置条件
func PreconditionError(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusBadRequest, CodePreconditionFailed, message)
}

// RateLimitError 触发限流
func RateLimitError(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusTooManyRequests, CodeRateLimited, message)
}

// VerificationError 收据未通过校验，data 中带上拒绝原因
func VerificationError(c *gin.Context, message string, data interface{}) {
	errorWithData(c, http.StatusOK, CodeVerificationFailed, message, data)
}

// VerificationTimeoutError 商店接口超时
func VerificationTimeoutError(c *gin.Context, message string, data interface{}) {
	errorWithData(c, http.StatusGatewayTimeout, CodeVerificationTimeout, message, data)
}

// TransitionError 状态转换不合法
func TransitionError(c *gin.Context, message string) {
	Error(c, CodeInvalidTransition, message)
}
