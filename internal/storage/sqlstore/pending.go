package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"Empleaido-Core/internal/execution"
	xerrors "Empleaido-Core/internal/errors"
)

const pendingColumns = `id, activation_id, user_id, agent_id, skill, input, output, status, created_at, expires_at, resolved_at`

// PendingStore 保存待确认的关键技能结果。
type PendingStore struct {
	db *DB
}

var _ execution.PendingStore = (*PendingStore)(nil)

// Pending 返回待确认结果仓储。
func (d *DB) Pending() *PendingStore {
	return &PendingStore{db: d}
}

// Create 实现 execution.PendingStore 接口。
func (s *PendingStore) Create(ctx context.Context, p *execution.Pending) error {
	if p == nil || p.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "待确认记录缺少 ID")
	}
	input, err := encodeInput(p.Input)
	if err != nil {
		return storageError(err, "序列化技能输入失败")
	}
	_, err = s.db.db.ExecContext(ctx, `INSERT INTO pending_confirmations (`+pendingColumns+`)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ActivationID, p.UserID, p.AgentID, p.Skill, input, p.Output, string(p.Status),
		toMillis(p.CreatedAt), toMillis(p.ExpiresAt), nullMillis(p.ResolvedAt))
	if err != nil {
		if s.db.isDuplicate(err) {
			return xerrors.New(xerrors.CodeConflict, "待确认记录已存在")
		}
		return storageError(err, "写入待确认记录失败")
	}
	return nil
}

// Get 实现 execution.PendingStore 接口。
func (s *PendingStore) Get(ctx context.Context, id string) (*execution.Pending, error) {
	var (
		p          execution.Pending
		input      sql.NullString
		status     string
		createdAt  int64
		expiresAt  int64
		resolvedAt sql.NullInt64
	)
	err := s.db.db.QueryRowContext(ctx, `SELECT `+pendingColumns+`
    FROM pending_confirmations WHERE id = ?`, id).Scan(
		&p.ID, &p.ActivationID, &p.UserID, &p.AgentID, &p.Skill, &input, &p.Output, &status,
		&createdAt, &expiresAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, execution.ErrConfirmationNotFound
	}
	if err != nil {
		return nil, storageError(err, "读取待确认记录失败")
	}
	p.Status = execution.Status(status)
	p.CreatedAt = fromMillis(createdAt)
	p.ExpiresAt = fromMillis(expiresAt)
	p.ResolvedAt = timePtr(resolvedAt)
	if input.Valid && input.String != "" {
		if err := json.Unmarshal([]byte(input.String), &p.Input); err != nil {
			return nil, storageError(err, "解析技能输入失败")
		}
	}
	return &p, nil
}

// Resolve 实现 execution.PendingStore 接口。条件更新保证同一记录只会被处理一次。
func (s *PendingStore) Resolve(ctx context.Context, id string, status execution.Status, at time.Time) error {
	res, err := s.db.db.ExecContext(ctx, `UPDATE pending_confirmations SET status = ?, resolved_at = ?
    WHERE id = ? AND status = ?`, string(status), toMillis(at), id, string(execution.StatusPending))
	if err != nil {
		return storageError(err, "更新待确认记录失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError(err, "读取更新结果失败")
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return execution.ErrConfirmationResolved
}
