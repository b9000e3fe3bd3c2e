package util

import (
	"fmt"
	"strings"
)

// ValidateKind 验证会话类型（interview / presentation）
func ValidateKind(kind string) error {
	switch kind {
	case "interview", "presentation":
		return nil
	default:
		return fmt.Errorf("invalid session kind %q", kind)
	}
}

// ValidateTopic 验证主题/岗位（不能为空且长度合理）
func ValidateTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if len(topic) > 300 {
		return fmt.Errorf("topic too long, max 300 characters")
	}
	return nil
}

// ValidateScore 验证反馈分数必须在 1..10
func ValidateScore(score int) error {
	if score < 1 || score > 10 {
		return fmt.Errorf("score out of range: %d", score)
	}
	return nil
}

// NormalizePage 规范分页参数
func NormalizePage(page, pageSize, defaultSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultSize
	}
	return page, pageSize
}
