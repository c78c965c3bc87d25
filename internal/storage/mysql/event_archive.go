package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
)

const (
	insertEventSQL = `INSERT INTO swarm_events (id, swarm_id, event_type, payload, occurred_at)
        VALUES (?, ?, ?, ?, ?)`
	recentEventsSQL = `SELECT id, swarm_id, event_type, payload, occurred_at
        FROM swarm_events ORDER BY occurred_at DESC, id DESC LIMIT ?`
)

// EventArchive 将生命周期事件追加写入 swarm_events 表，实现 event.Sink。
type EventArchive struct {
	db *sql.DB
}

// NewEventArchive 建立连接，AutoMigrate 为 true 时执行内嵌迁移。
func NewEventArchive(ctx context.Context, cfg Config) (*EventArchive, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	archive := &EventArchive{db: db}
	if cfg.AutoMigrate {
		if err := archive.runMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return archive, nil
}

// Name 实现 event.Sink 接口。
func (a *EventArchive) Name() string { return "mysql" }

// Deliver 实现 event.Sink 接口。
func (a *EventArchive) Deliver(ctx context.Context, ev event.Event) error {
	var payload any
	if len(ev.Data) > 0 {
		encoded, err := json.Marshal(ev.Data)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化事件数据失败", xerrors.WithMetadata("event_id", ev.ID))
		}
		payload = string(encoded)
	}
	if _, err := a.db.ExecContext(ctx, insertEventSQL,
		ev.ID,
		ev.SwarmID,
		string(ev.Type),
		payload,
		ev.Timestamp.UnixMilli(),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入事件归档失败", xerrors.WithMetadata("event_id", ev.ID))
	}
	return nil
}

// Recent 按时间倒序查询最近的若干条归档事件。
func (a *EventArchive) Recent(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, recentEventsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询事件归档失败")
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev         event.Event
			typ        string
			payload    sql.NullString
			occurredAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.SwarmID, &typ, &payload, &occurredAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析事件归档失败")
		}
		ev.Type = event.Type(typ)
		ev.Timestamp = time.UnixMilli(occurredAt).UTC()
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Data); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析事件数据失败", xerrors.WithMetadata("event_id", ev.ID))
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历事件归档失败")
	}
	return events, nil
}

// Close 关闭底层数据库连接。
func (a *EventArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
