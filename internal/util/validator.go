package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime 接受 RFC3339 或 YYYY-MM-DD（按 UTC 零点）
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("time is empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseOptionalTime 空字符串返回 nil
func ParseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseOptionalBool 空字符串返回 nil
func ParseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bool %q", s)
	}
	return &b, nil
}

// ParseNonNegativeInt 解析分页等参数，空字符串返回 def
func ParseNonNegativeInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
