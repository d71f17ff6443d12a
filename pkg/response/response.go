// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
const (
	CodeSuccess         = 0    // 成功
	CodeBadRequest      = 1000 // 请求参数错误
	CodeUnauthorized    = 1001 // 未授权
	CodeForbidden       = 1002 // 禁止访问
	CodeNotFound        = 1003 // 资源不存在
	CodeInternalError   = 1004 // 服务器内部错误
	CodeRateLimited     = 1005 // 请求过于频繁
	CodeUnavailable     = 1006 // 依赖服务不可用
	CodeSessionNotFound = 1301 // 会话不存在
	CodeSessionExists   = 1302 // 会话已存在
	CodeFileNotFound    = 1401 // 文件不存在
	CodeFileTooLarge    = 1402 // 文件过大
	CodeCSVParse        = 1403 // CSV 解析失败
	CodeInvalidImage    = 1404 // 图片无效
	CodeModelError      = 1501 // 模型调用失败
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 返回成功响应（带自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// AbortWithCode 返回错误响应并终止后续中间件
func AbortWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.AbortWithStatusJSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusInternalServerError, CodeInternalError, message)
}

// SessionNotFound 返回会话不存在错误
func SessionNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeSessionNotFound, "Session not found")
}

// SessionExists 返回会话已存在错误
func SessionExists(c *gin.Context) {
	ErrorWithCode(c, http.StatusConflict, CodeSessionExists, "Session already exists")
}

// FileNotFound 返回文件不存在错误
func FileNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeFileNotFound, "File not found")
}

// FileTooLarge 返回 413 文件过大
func FileTooLarge(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// ModelError 返回 502 模型调用失败
func ModelError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadGateway, CodeModelError, message)
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "created",
		Data:    data,
	})
}
