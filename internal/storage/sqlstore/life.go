package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"Empleaido-Core/internal/life"
)

// LifeStore 保存每个激活的成长数值。
type LifeStore struct {
	db *DB
}

var _ life.Store = (*LifeStore)(nil)

// Life 返回成长数值仓储。
func (d *DB) Life() *LifeStore {
	return &LifeStore{db: d}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readStats 读取数值并按 updated_at 之后经过的时间恢复能量。
func readStats(ctx context.Context, q queryRower, key, suffix string, now time.Time) (life.Stats, bool, error) {
	var (
		s       life.Stats
		updated int64
	)
	err := q.QueryRowContext(ctx, `SELECT level, experience, trust, energy, updated_at FROM life_stats WHERE stats_key = ?`+suffix, key).
		Scan(&s.Level, &s.Experience, &s.Trust, &s.Energy, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return life.Initial(), false, nil
	}
	if err != nil {
		return life.Stats{}, false, storageError(err, "读取成长数值失败")
	}
	return s.Recover(fromMillis(updated), now), true, nil
}

// Get 实现 life.Store 接口。
func (s *LifeStore) Get(ctx context.Context, key string) (life.Stats, error) {
	stats, _, err := readStats(ctx, s.db.db, key, "", s.db.now())
	return stats, err
}

// Apply 实现 life.Store 接口，在一个事务内读取并写回。
func (s *LifeStore) Apply(ctx context.Context, key string, activity life.Activity) (life.Stats, error) {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return life.Stats{}, storageError(err, "开启事务失败")
	}
	clock := s.db.now()
	current, found, err := readStats(ctx, tx, key, s.db.lockClause(), clock)
	if err != nil {
		tx.Rollback()
		return life.Stats{}, err
	}
	next := current.Apply(activity)
	now := toMillis(clock)
	if found {
		_, err = tx.ExecContext(ctx, `UPDATE life_stats SET level = ?, experience = ?, trust = ?, energy = ?, updated_at = ?
    WHERE stats_key = ?`, next.Level, next.Experience, next.Trust, next.Energy, now, key)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO life_stats (stats_key, level, experience, trust, energy, updated_at)
    VALUES (?, ?, ?, ?, ?, ?)`, key, next.Level, next.Experience, next.Trust, next.Energy, now)
	}
	if err != nil {
		tx.Rollback()
		return life.Stats{}, storageError(err, "写入成长数值失败")
	}
	if err := tx.Commit(); err != nil {
		return life.Stats{}, storageError(err, "提交事务失败")
	}
	return next, nil
}

// Close 实现 life.Store 接口。
func (s *LifeStore) Close() error { return nil }
