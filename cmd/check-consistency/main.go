package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"owl-restaurant/internal/common/database"
	"owl-restaurant/internal/config"
)

// check 一条只读诊断查询，每行返回 tenant_id, branch_id, subject, detail
type check struct {
	name  string
	query string
}

var checks = []check{
	{
		// 桌台占用中，但当前订单已取消、已结清或不存在
		name: "stale_tables",
		query: `
		SELECT t.tenant_id, t.branch_id, t.number,
		       COALESCE(o.order_number || ' ' || o.status || '/' || o.payment_status, 'no current order')
		FROM restaurant_tables t
		LEFT JOIN orders o ON o.order_id = t.current_order_id
		WHERE t.status IN ('occupied', 'billing')
		  AND (o.order_id IS NULL
		       OR o.status = 'cancelled'
		       OR (o.status = 'completed' AND o.payment_status = 'paid'))
		ORDER BY t.tenant_id, t.branch_id, t.number`,
	},
	{
		// 订单已付款，但没有 payment 记录
		name: "paid_without_payment",
		query: `
		SELECT o.tenant_id, o.branch_id, o.order_number, o.final_amount::text
		FROM orders o
		LEFT JOIN payments p ON p.order_id = o.order_id
		WHERE o.payment_status = 'paid' AND p.payment_id IS NULL
		ORDER BY o.tenant_id, o.branch_id, o.order_number`,
	},
	{
		// 有 payment 记录，但订单未标记为已付款
		name: "payment_without_paid_order",
		query: `
		SELECT p.tenant_id, p.branch_id, o.order_number, p.method || ' ' || p.amount_received::text
		FROM payments p
		JOIN orders o ON o.order_id = p.order_id
		WHERE o.payment_status <> 'paid'
		ORDER BY p.tenant_id, p.branch_id, o.order_number`,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	problems, err := runChecks(ctx, db, os.Stdout)
	if err != nil {
		log.Fatalf("Check failed: %v", err)
	}
	if problems > 0 {
		fmt.Printf("\n共发现 %d 处不一致\n", problems)
		os.Exit(2)
	}
	fmt.Println("\n未发现不一致")
}

// runChecks 依次执行所有检查并打印结果，返回问题行总数
func runChecks(ctx context.Context, db *sql.DB, w io.Writer) (int, error) {
	total := 0
	for _, c := range checks {
		n, err := runCheck(ctx, db, c, w)
		if err != nil {
			return total, fmt.Errorf("%s: %w", c.name, err)
		}
		total += n
	}
	return total, nil
}

func runCheck(ctx context.Context, db *sql.DB, c check, w io.Writer) (int, error) {
	rows, err := db.QueryContext(ctx, c.query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	fmt.Fprintf(w, "== %s\n", c.name)
	fmt.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-20s %-20s %-20s %-40s\n", "tenant_id", "branch_id", "subject", "detail")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	count := 0
	for rows.Next() {
		var tenantID, branchID, subject, detail sql.NullString
		if err := rows.Scan(&tenantID, &branchID, &subject, &detail); err != nil {
			return count, err
		}
		fmt.Fprintf(w, "%-20s %-20s %-20s %-40s\n",
			getString(tenantID), getString(branchID), getString(subject), getString(detail))
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}
	fmt.Fprintf(w, "共 %d 条\n\n", count)
	return count, nil
}

func getString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return "NULL"
}
