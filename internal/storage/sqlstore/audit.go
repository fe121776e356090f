package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"Empleaido-Core/internal/audit"
)

const auditColumns = `id, ts, kind, activation_id, agent_id, user_id, skill, input, verdict, reason_code, reason, outcome, detail`

// AuditStore 把审计事件写入 audit_events 表，只追加不修改。
type AuditStore struct {
	db *DB
}

var (
	_ audit.Sink   = (*AuditStore)(nil)
	_ audit.Reader = (*AuditStore)(nil)
)

// Audit 返回审计仓储。
func (d *DB) Audit() *AuditStore {
	return &AuditStore{db: d}
}

// Append 实现 audit.Sink 接口。
func (s *AuditStore) Append(ctx context.Context, event audit.Event) error {
	event.Normalize()
	input, err := encodeInput(event.Input)
	if err != nil {
		return storageError(err, "序列化审计输入失败")
	}
	_, err = s.db.db.ExecContext(ctx, `INSERT INTO audit_events (`+auditColumns+`)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, toMillis(event.Timestamp), string(event.Kind), event.ActivationID, event.AgentID, event.UserID,
		event.Skill, input, event.Verdict, event.ReasonCode, event.Reason, event.Outcome, event.Detail)
	if err != nil {
		return storageError(err, "写入审计事件失败")
	}
	return nil
}

// List 实现 audit.Reader 接口，结果按时间倒序。
func (s *AuditStore) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	query, args := buildAuditQuery(filter)
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "查询审计事件失败")
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e      audit.Event
			ts     int64
			kind   string
			input  sql.NullString
			reason sql.NullString
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &kind, &e.ActivationID, &e.AgentID, &e.UserID, &e.Skill, &input,
			&e.Verdict, &e.ReasonCode, &reason, &e.Outcome, &detail); err != nil {
			return nil, storageError(err, "解析审计事件失败")
		}
		e.Timestamp = fromMillis(ts)
		e.Kind = audit.Kind(kind)
		e.Reason = reason.String
		e.Detail = detail.String
		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &e.Input); err != nil {
				return nil, storageError(err, "解析审计输入失败")
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "遍历审计事件失败")
	}
	return events, nil
}

func buildAuditQuery(filter audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	add("activation_id", filter.ActivationID)
	add("agent_id", filter.AgentID)
	add("user_id", filter.UserID)
	add("kind", string(filter.Kind))

	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + " FROM audit_events")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC, id DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	b.WriteString(" LIMIT ?")
	args = append(args, limit)
	return b.String(), args
}

func encodeInput(input map[string]any) (sql.NullString, error) {
	if len(input) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
