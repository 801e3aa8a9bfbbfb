package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/storage/mysql"
	"AgentDesk/internal/tool"
)

const runColumns = `id, agent_id, task_name, workflow_definition, integrations, status, attempts, max_retries,
        last_error, error_code, result_reply, result_tool, result_outcome, created_at, updated_at`

// SQLStore 使用 workflow_runs 表记录任务状态，支持 MySQL 与 SQLite。
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore 打开数据库并执行迁移。
func NewSQLStore(ctx context.Context, cfg mysql.Config) (*SQLStore, error) {
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open workflow run store")
	}
	return NewSQLStoreWithDB(db), nil
}

// NewSQLStoreWithDB 复用已有连接，调用方负责迁移。
func NewSQLStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) stamp() int64 {
	return s.now().UnixMilli()
}

// Create 插入新的任务记录。
func (s *SQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task must not be nil")
	}
	if strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "task id must not be empty")
	}

	now := s.stamp()
	task.CreatedAt = now
	task.UpdatedAt = now

	const stmt = `INSERT INTO workflow_runs
        (id, agent_id, task_name, workflow_definition, integrations, status, attempts, max_retries,
        last_error, error_code, result_reply, result_tool, result_outcome, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', '', '', '', ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		task.ID,
		task.AgentID,
		task.TaskName,
		task.WorkflowDefinition,
		joinIntegrations(task.Integrations),
		string(task.Status),
		task.Attempts,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert workflow run")
	}
	return nil
}

// Get 查询指定任务。
func (s *SQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query workflow run")
	}
	return task, nil
}

// Claim 将任务标记为运行中并返回最新状态。
func (s *SQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const updateStmt = `UPDATE workflow_runs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, updateStmt,
		string(StatusRunning),
		s.stamp(),
		id,
		string(StatusPending),
		string(StatusFailed),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "claim workflow run")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read affected rows")
	}
	if affected == 0 {
		task, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch task.Status {
		case StatusSucceeded:
			return task, ErrTaskCompleted
		case StatusRunning:
			return task, ErrTaskConflict
		default:
			if task.Attempts >= task.MaxRetries {
				return task, ErrTaskExhausted
			}
			return task, ErrTaskConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将任务标记为成功。
func (s *SQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	const stmt = `UPDATE workflow_runs SET status = ?, result_reply = ?, result_tool = ?, result_outcome = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusSucceeded),
		result.Reply,
		result.Tool,
		result.Outcome,
		s.stamp(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "mark workflow run succeeded")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkFailed 将任务标记为失败。
func (s *SQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *ExecutionResult) error {
	stmt := `UPDATE workflow_runs SET status = ?, last_error = ?, error_code = ?, updated_at = ?`
	args := []any{string(StatusFailed), lastError, string(code), s.stamp()}
	if !result.empty() {
		stmt += `, result_reply = ?, result_tool = ?, result_outcome = ?`
		args = append(args, result.Reply, result.Tool, result.Outcome)
	}
	stmt += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "mark workflow run failed")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回符合条件的任务。
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT ` + runColumns + ` FROM workflow_runs`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id ASC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list workflow runs")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan workflow run")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate workflow runs")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *SQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM workflow_runs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	var stats TaskStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query workflow run stats")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task         Task
		result       ExecutionResult
		integrations sql.NullString
		lastError    sql.NullString
		reply        sql.NullString
		status       string
	)
	if err := row.Scan(
		&task.ID,
		&task.AgentID,
		&task.TaskName,
		&task.WorkflowDefinition,
		&integrations,
		&status,
		&task.Attempts,
		&task.MaxRetries,
		&lastError,
		&task.ErrorCode,
		&reply,
		&result.Tool,
		&result.Outcome,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = Status(status)
	task.LastError = lastError.String
	task.Integrations = tool.ParseIntegrations(integrations.String)
	result.Reply = reply.String
	if !result.empty() {
		task.Result = &result
	}
	return &task, nil
}

func joinIntegrations(tags []tool.Integration) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, string(tag))
	}
	return strings.Join(parts, ",")
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, opts.AgentID)
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "(COALESCE(result_reply, '') <> '' OR result_tool <> '' OR result_outcome <> '')")
		} else {
			conditions = append(conditions, "(COALESCE(result_reply, '') = '' AND result_tool = '' AND result_outcome = '')")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(task_name LIKE ? OR workflow_definition LIKE ? OR last_error LIKE ? OR result_reply LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*SQLStore)(nil)
