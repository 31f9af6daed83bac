// Package sequence 按 (tenant, branch) 分配单调递增的订单序号
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/store"
)

// Generator 原子地自增并返回下一个序号（每个 scope 独立计数，从 1 开始）
type Generator interface {
	Next(ctx context.Context, scope domain.Scope) (int64, error)
}

// PostgresGenerator 基于 upsert 的计数器：单条语句完成 自增+读取
type PostgresGenerator struct {
	db *sql.DB
}

func NewPostgresGenerator(db *sql.DB) *PostgresGenerator {
	return &PostgresGenerator{db: db}
}

func (g *PostgresGenerator) Next(ctx context.Context, scope domain.Scope) (int64, error) {
	query := `
		INSERT INTO order_sequences (tenant_id, branch_id, seq, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (tenant_id, branch_id)
		DO UPDATE SET seq = order_sequences.seq + 1, updated_at = now()
		RETURNING seq
	`
	var seq int64
	if err := g.db.QueryRowContext(ctx, query, scope.TenantID, scope.BranchID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate order sequence: %w", err)
	}
	return seq, nil
}

// RedisGenerator INCR order_seq:{tenant}:{branch}
type RedisGenerator struct {
	kv store.KV
}

func NewRedisGenerator(kv store.KV) *RedisGenerator {
	return &RedisGenerator{kv: kv}
}

// Key 计数器键
func Key(scope domain.Scope) string {
	return "order_seq:" + scope.Join(":")
}

func (g *RedisGenerator) Next(ctx context.Context, scope domain.Scope) (int64, error) {
	seq, err := g.kv.Incr(ctx, Key(scope))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order sequence: %w", err)
	}
	return seq, nil
}

// MemoryGenerator 单进程计数器（DB / Redis 都未启用时使用）
type MemoryGenerator struct {
	mu   sync.Mutex
	seqs map[domain.Scope]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{seqs: map[domain.Scope]int64{}}
}

func (g *MemoryGenerator) Next(_ context.Context, scope domain.Scope) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seqs[scope]++
	return g.seqs[scope], nil
}

var (
	_ Generator = (*PostgresGenerator)(nil)
	_ Generator = (*RedisGenerator)(nil)
	_ Generator = (*MemoryGenerator)(nil)
)
