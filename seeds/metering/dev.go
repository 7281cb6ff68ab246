package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	devCustomerID = "cust_acme_dev_0000000001"
	devGroupID    = "pg_acme_prod_0000000001"
	devProjectID  = "proj_acme_web_0000000001"
	devProject2ID = "proj_acme_db_00000000001"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("Seeding metering database...")

	fmt.Println("  Inserting customer...")
	exec(ctx, pool,
		`INSERT INTO customers (id, name, created_at, updated_at) VALUES ($1, $2, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		devCustomerID, "acme")

	fmt.Println("  Inserting projects...")
	exec(ctx, pool,
		`INSERT INTO projects (id, customer_id, name, created_at, updated_at) VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		devProjectID, devCustomerID, "acme-web")
	exec(ctx, pool,
		`INSERT INTO projects (id, customer_id, name, created_at, updated_at) VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		devProject2ID, devCustomerID, "acme-db")

	fmt.Println("  Inserting project group...")
	exec(ctx, pool,
		`INSERT INTO project_groups (id, customer_id, name, created_at, updated_at) VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		devGroupID, devCustomerID, "acme-production")
	exec(ctx, pool,
		`INSERT INTO project_group_projects (project_group_id, project_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		devGroupID, devProjectID)

	fmt.Println("  Inserting quotas...")
	for _, q := range []struct {
		scopeType    string
		scopeID      string
		resourceType string
		limit        int64
	}{
		{"customer", devCustomerID, "vcpu", 256},
		{"customer", devCustomerID, "ram", 524288},
		{"customer", devCustomerID, "max_instances", 100},
		{"project", devProjectID, "vcpu", 64},
		{"project", devProjectID, "max_instances", 30},
		{"project", devProject2ID, "vcpu", 32},
	} {
		exec(ctx, pool,
			`INSERT INTO quotas (scope_type, scope_id, resource_type, limit_value, usage) VALUES ($1, $2, $3, $4, 0)
			 ON CONFLICT (scope_type, scope_id, resource_type) DO UPDATE SET limit_value = EXCLUDED.limit_value`,
			q.scopeType, q.scopeID, q.resourceType, q.limit)
	}

	fmt.Println("Done.")
}

func exec(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) {
	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}
