// Package repository 提供任务记录的持久化访问
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DB 数据库操作接口
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JobRecord 排班任务持久化记录
// payload/result/error_diagnostics 均以jsonb落库
type JobRecord struct {
	ID               string
	Name             string
	DepartmentID     string
	Solver           string
	Status           string
	Payload          json.RawMessage
	Result           json.RawMessage
	BestResult       json.RawMessage
	Error            string
	ErrorDiagnostics json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobRepository 任务记录仓库
type JobRepository struct {
	db DB
}

// NewJobRepository 创建任务记录仓库
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create 写入新任务记录
func (r *JobRepository) Create(ctx context.Context, record *JobRecord) error {
	query := `
		INSERT INTO scheduler_jobs (
			id, name, department_id, solver, status,
			payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.DepartmentID,
		record.Solver,
		record.Status,
		nullableJSON(record.Payload),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建任务记录失败: %w", err)
	}
	return nil
}

// Update 按任务ID刷新状态与结果字段
func (r *JobRepository) Update(ctx context.Context, record *JobRecord) error {
	query := `
		UPDATE scheduler_jobs SET
			status = $2,
			result = $3,
			best_result = $4,
			error = $5,
			error_diagnostics = $6,
			updated_at = $7
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Status,
		nullableJSON(record.Result),
		nullableJSON(record.BestResult),
		nullableString(record.Error),
		nullableJSON(record.ErrorDiagnostics),
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新任务记录失败: %w", err)
	}
	return nil
}

// GetByID 按任务ID查询记录
func (r *JobRepository) GetByID(ctx context.Context, id string) (*JobRecord, error) {
	query := `
		SELECT id, name, department_id, solver, status,
		       payload, result, best_result, error, error_diagnostics,
		       created_at, updated_at
		FROM scheduler_jobs
		WHERE id = $1`

	record := &JobRecord{}
	var payload, result, bestResult, errDiag sql.NullString
	var errMsg sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Name,
		&record.DepartmentID,
		&record.Solver,
		&record.Status,
		&payload,
		&result,
		&bestResult,
		&errMsg,
		&errDiag,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务记录失败: %w", err)
	}

	if payload.Valid {
		record.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		record.Result = json.RawMessage(result.String)
	}
	if bestResult.Valid {
		record.BestResult = json.RawMessage(bestResult.String)
	}
	if errMsg.Valid {
		record.Error = errMsg.String
	}
	if errDiag.Valid {
		record.ErrorDiagnostics = json.RawMessage(errDiag.String)
	}
	return record, nil
}

// DeleteExpired 删除在指定时刻之前进入终态的记录，返回删除条数
func (r *JobRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM scheduler_jobs
		WHERE updated_at < $1
		  AND status IN ('completed', 'failed', 'timedout', 'cancelled')`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("清理过期任务记录失败: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
