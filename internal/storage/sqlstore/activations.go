package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"Empleaido-Core/internal/activation"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/preference"
)

const activationColumns = `activation_id, user_id, agent_id, current_phase, messages_in_phase, started_at, completed_at, preferences, bootstrap_cleared, version, updated_at`

// ActivationStore 以 SQL 表保存激活状态，用 version 列实现乐观并发。
type ActivationStore struct {
	db *DB
}

var _ activation.Store = (*ActivationStore)(nil)

// Activations 返回激活仓储。
func (d *DB) Activations() *ActivationStore {
	return &ActivationStore{db: d}
}

// Create 实现 activation.Store 接口。
func (s *ActivationStore) Create(ctx context.Context, userID, agentID string) (*activation.State, error) {
	userID = strings.TrimSpace(userID)
	agentID = strings.TrimSpace(agentID)
	if userID == "" || agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_id 与 agent_id 不能为空")
	}
	state := activation.New(userID, agentID, s.db.now())
	prefs, err := json.Marshal(state.Preferences)
	if err != nil {
		return nil, storageError(err, "序列化偏好失败")
	}

	_, err = s.db.db.ExecContext(ctx, `INSERT INTO activations (`+activationColumns+`)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ActivationID, state.UserID, state.AgentID, string(state.CurrentPhase), state.MessagesInPhase,
		toMillis(state.StartedAt), nullMillis(state.CompletedAt), string(prefs), boolInt(state.BootstrapCleared),
		state.Version, toMillis(state.UpdatedAt))
	if err != nil {
		if s.db.isDuplicate(err) {
			return nil, activation.ErrExists
		}
		return nil, storageError(err, "写入激活失败")
	}
	return state, nil
}

// Get 实现 activation.Store 接口。
func (s *ActivationStore) Get(ctx context.Context, id string) (*activation.State, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+activationColumns+`
    FROM activations WHERE activation_id = ?`, id)
	return scanActivation(row)
}

// FindByUserAgent 实现 activation.Store 接口。
func (s *ActivationStore) FindByUserAgent(ctx context.Context, userID, agentID string) (*activation.State, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+activationColumns+`
    FROM activations WHERE user_id = ? AND agent_id = ?`, strings.TrimSpace(userID), strings.TrimSpace(agentID))
	return scanActivation(row)
}

// Save 实现 activation.Store 接口。只有存储中的版本号与 state.Version 一致时才会写入。
func (s *ActivationStore) Save(ctx context.Context, state *activation.State) error {
	if state == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "state 不能为空")
	}
	prefs, err := json.Marshal(state.Preferences)
	if err != nil {
		return storageError(err, "序列化偏好失败")
	}
	now := s.db.now().UTC()
	res, err := s.db.db.ExecContext(ctx, `UPDATE activations SET current_phase = ?, messages_in_phase = ?, completed_at = ?, preferences = ?, bootstrap_cleared = ?, version = ?, updated_at = ?
    WHERE activation_id = ? AND version = ?`,
		string(state.CurrentPhase), state.MessagesInPhase, nullMillis(state.CompletedAt), string(prefs),
		boolInt(state.BootstrapCleared), state.Version+1, toMillis(now), state.ActivationID, state.Version)
	if err != nil {
		return storageError(err, "更新激活失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError(err, "读取更新结果失败")
	}
	if affected == 0 {
		var version int64
		err := s.db.db.QueryRowContext(ctx, `SELECT version FROM activations WHERE activation_id = ?`, state.ActivationID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return activation.ErrNotFound
		}
		if err != nil {
			return storageError(err, "查询激活版本失败")
		}
		return activation.ErrConflict
	}
	state.Version++
	state.UpdatedAt = now
	return nil
}

// Close 实现 activation.Store 接口。连接池由 DB 统一关闭。
func (s *ActivationStore) Close() error { return nil }

func scanActivation(row *sql.Row) (*activation.State, error) {
	var (
		state       activation.State
		phase       string
		startedAt   int64
		completedAt sql.NullInt64
		prefs       string
		cleared     int64
		updatedAt   int64
	)
	err := row.Scan(&state.ActivationID, &state.UserID, &state.AgentID, &phase, &state.MessagesInPhase,
		&startedAt, &completedAt, &prefs, &cleared, &state.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, activation.ErrNotFound
	}
	if err != nil {
		return nil, storageError(err, "读取激活失败")
	}
	state.CurrentPhase = activation.Phase(phase)
	state.StartedAt = fromMillis(startedAt)
	state.CompletedAt = timePtr(completedAt)
	state.BootstrapCleared = cleared != 0
	state.UpdatedAt = fromMillis(updatedAt)
	if prefs != "" {
		var p preference.Preferences
		if err := json.Unmarshal([]byte(prefs), &p); err != nil {
			return nil, storageError(err, "解析偏好失败")
		}
		state.Preferences = p
	}
	return &state, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
