package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound 记录不存在，或不在调用方的 tenant / branch 范围内（两者对调用方不可区分）
	ErrNotFound = errors.New("record not found")
	// ErrConflict 条件写入失败（期望的前置状态 / version 不匹配）
	ErrConflict = errors.New("conditional write lost")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
)

// isUniqueViolation PostgreSQL unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// normalizePage 分页参数规范化
func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

// pageBounds 内存分页的切片区间
func pageBounds(total, page, size int) (int, int) {
	page, size = normalizePage(page, size)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
