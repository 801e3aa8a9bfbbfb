package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"AgentDesk/internal/customer"
	xerrors "AgentDesk/internal/errors"
)

const customerColumns = `id, name, email, company, phone, status, notes,
        custom_field_1, custom_field_2, custom_field_3, custom_field_4, custom_field_5, created_at, updated_at`

// SQLCustomerStore 在 customers 表中保存客户记录。
type SQLCustomerStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLCustomerStore 打开数据库并执行迁移。
func NewSQLCustomerStore(ctx context.Context, cfg Config) (*SQLCustomerStore, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化客户存储失败")
	}
	return NewSQLCustomerStoreWithDB(db), nil
}

// NewSQLCustomerStoreWithDB 使用已有连接池创建存储，连接池需已完成迁移。
func NewSQLCustomerStoreWithDB(db *sql.DB) *SQLCustomerStore {
	return &SQLCustomerStore{db: db, now: time.Now}
}

// Create 插入新记录。
func (s *SQLCustomerStore) Create(ctx context.Context, record customer.Record) (customer.Record, error) {
	record = customer.PrepareCreate(record, s.now())
	if err := record.Validate(); err != nil {
		return customer.Record{}, err
	}

	const stmt = `INSERT INTO customers (` + customerColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Name,
		record.Email,
		record.Company,
		record.Phone,
		string(record.Status),
		record.Notes,
		record.CustomField1,
		record.CustomField2,
		record.CustomField3,
		record.CustomField4,
		record.CustomField5,
		record.CreatedAt.UnixMilli(),
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return customer.Record{}, xerrors.New(xerrors.CodeConflict, "customer id already exists")
		}
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入客户失败")
	}
	return record, nil
}

// Get 按 ID 查询。
func (s *SQLCustomerStore) Get(ctx context.Context, id string) (customer.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, strings.TrimSpace(id))
	record, err := scanCustomer(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return customer.Record{}, customer.ErrNotFound
		}
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户失败")
	}
	return record, nil
}

// Find 按过滤条件查询。
func (s *SQLCustomerStore) Find(ctx context.Context, filter customer.Filter) ([]customer.Record, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		clauses = append(clauses, clause)
		args = append(args, value)
	}
	if filter.Name != "" {
		add("name = ?", filter.Name)
	}
	if filter.Email != "" {
		add("LOWER(email) = LOWER(?)", filter.Email)
	}
	if filter.Company != "" {
		add("company = ?", filter.Company)
	}
	if filter.Phone != "" {
		add("phone = ?", filter.Phone)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.NameContains != "" {
		add("LOWER(name) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(filter.NameContains))+"%")
	}

	query := `SELECT ` + customerColumns + ` FROM customers`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY name, id`
	return s.query(ctx, query, args...)
}

// Recent 按更新时间倒序返回。
func (s *SQLCustomerStore) Recent(ctx context.Context, limit int) ([]customer.Record, error) {
	if limit <= 0 {
		limit = customer.RecentLimit
	}
	return s.query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY updated_at DESC, id LIMIT ?`, limit)
}

// Update 在事务中读取、应用补丁并写回。
func (s *SQLCustomerStore) Update(ctx context.Context, id string, patch customer.Patch) (customer.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	current, err := scanCustomer(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return customer.Record{}, customer.ErrNotFound
		}
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户失败")
	}

	updated, err := patch.Apply(current)
	if err != nil {
		return customer.Record{}, err
	}
	updated.UpdatedAt = s.now().UTC()

	const stmt = `UPDATE customers SET name = ?, email = ?, company = ?, phone = ?, status = ?, notes = ?,
        custom_field_1 = ?, custom_field_2 = ?, custom_field_3 = ?, custom_field_4 = ?, custom_field_5 = ?, updated_at = ?
        WHERE id = ?`
	if _, err := tx.ExecContext(ctx, stmt,
		updated.Name,
		updated.Email,
		updated.Company,
		updated.Phone,
		string(updated.Status),
		updated.Notes,
		updated.CustomField1,
		updated.CustomField2,
		updated.CustomField3,
		updated.CustomField4,
		updated.CustomField5,
		updated.UpdatedAt.UnixMilli(),
		id,
	); err != nil {
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新客户失败")
	}
	if err := tx.Commit(); err != nil {
		return customer.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return updated, nil
}

// Delete 物理删除记录。
func (s *SQLCustomerStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除客户失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// Close 关闭底层连接池。
func (s *SQLCustomerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLCustomerStore) query(ctx context.Context, query string, args ...any) ([]customer.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户列表失败")
	}
	defer rows.Close()

	var records []customer.Record
	for rows.Next() {
		record, err := scanCustomer(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析客户记录失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历客户记录失败")
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (customer.Record, error) {
	var (
		record               customer.Record
		status               string
		notes                sql.NullString
		f1, f2, f3, f4, f5   sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Email,
		&record.Company,
		&record.Phone,
		&status,
		&notes,
		&f1, &f2, &f3, &f4, &f5,
		&createdAt,
		&updatedAt,
	); err != nil {
		return customer.Record{}, err
	}
	record.Status = customer.Status(status)
	record.Notes = notes.String
	record.CustomField1 = f1.String
	record.CustomField2 = f2.String
	record.CustomField3 = f3.String
	record.CustomField4 = f4.String
	record.CustomField5 = f5.String
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return replacer.Replace(value)
}

var _ customer.Store = (*SQLCustomerStore)(nil)
