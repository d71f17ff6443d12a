// Package util 提供通用工具函数
package util

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashKey 使用 bcrypt 哈希访问密钥
// 参数:
//   - key: 明文密钥
//
// 返回:
//   - string: 哈希值，写入配置 auth.access_key_hash
//   - error: 哈希错误
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckKey 验证密钥是否匹配
func CheckKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateUUID 生成 UUID v4，格式 xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func GenerateUUID() string {
	return uuid.New().String()
}

// HashToken 计算 Token 的 SHA256，用作黑名单的键
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TruncateString 截断字符串到指定长度（按字符）
// 如果字符串超过指定长度，截断并添加 "..."
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// StringPtr 返回字符串的指针
func StringPtr(s string) *string {
	return &s
}
