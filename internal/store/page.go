package store

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage 保证 Offset 不超过 int32，避免偏移量溢出
	MaxPage = math.MaxInt32/MaxLimit + 1
)

// SortOrder 列表排序方向（按创建时间）。
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// Page 分页参数。
type Page struct {
	Page  int
	Limit int
	Sort  SortOrder
}

// Offset 返回当前页的偏移量。
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParsePage 解析查询参数。缺失或非数字时使用默认值，page 收敛到 [1, MaxPage]，limit 收敛到 [1, MaxLimit]。
func ParsePage(pageStr, limitStr, sortStr string) Page {
	p := Page{
		Page:  parseQueryInt(pageStr, DefaultPage),
		Limit: parseQueryInt(limitStr, DefaultLimit),
		Sort:  SortDesc,
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if strings.EqualFold(strings.TrimSpace(sortStr), string(SortAsc)) {
		p.Sort = SortAsc
	}
	return p
}

func parseQueryInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
