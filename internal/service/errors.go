// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository、Cache 和模型调用
package service

import "errors"

// 业务错误，handler 通过 errors.Is 映射为 HTTP 状态码
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidMode     = errors.New("invalid session mode")
	ErrInvalidRole     = errors.New("invalid message role")
	ErrInvalidFileData = errors.New("file_data must be a JSON object")
	ErrFileNotFound    = errors.New("file not found")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyInput      = errors.New("input is required")
	ErrAuthDisabled    = errors.New("authentication is disabled")
	ErrInvalidKey      = errors.New("invalid access key")
	ErrNoRevocation    = errors.New("token revocation requires redis, the token stays valid until it expires")
)
