package llm

import (
	"errors"
	"fmt"
)

// ErrStreamStalled 流式响应超过空闲时间没有新数据
var ErrStreamStalled = errors.New("stream stalled")

// APIError 模型服务返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited 判断是否为上游限流
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
