package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// schema 目录下的文件名形如 0001_customers.sql，前缀数字即版本号。
//
//go:embed schema/*.sql
var schemaFS embed.FS

type migration struct {
	version int
	name    string
	body    string
}

// statements 按分号拆分迁移脚本，忽略空语句与 -- 注释行。
func (m migration) statements() []string {
	var out []string
	for _, chunk := range strings.Split(m.body, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func loadMigrations() ([]migration, error) {
	files, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}
	out := make([]migration, 0, len(files))
	for _, file := range files {
		if file.IsDir() || path.Ext(file.Name()) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(file.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("迁移文件名缺少版本前缀: %s", file.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("迁移版本号无效 %s: %w", file.Name(), err)
		}
		body, err := schemaFS.ReadFile(path.Join("schema", file.Name()))
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", file.Name(), err)
		}
		out = append(out, migration{version: version, name: file.Name(), body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("迁移版本重复: %s 与 %s", out[i-1].name, out[i].name)
		}
	}
	return out, nil
}

// runMigrations 在单独的事务中逐个应用尚未记录在 schema_migrations 中的版本。
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INT NOT NULL PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("查询当前迁移版本失败: %w", err)
	}

	pending, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements() {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", m.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}
	return tx.Commit()
}
