package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
)

// HistoryConfig 描述 Redis 历史存储的连接参数。
type HistoryConfig struct {
	Address    string
	Password   string
	DB         int
	KeyPrefix  string
	MaxSamples int
}

// HistoryStore 以 LPUSH+LTRIM 维护每个序列最近的负载采样，值为 JSON 编码的采样点。
type HistoryStore struct {
	client goredis.UniversalClient
	prefix string
	max    int64
}

// NewHistoryStore 连接 Redis 并创建 HistoryStore。
func NewHistoryStore(ctx context.Context, cfg HistoryConfig) (*HistoryStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "Redis address 不能为空", xerrors.WithMetadata("field", "address"))
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败", xerrors.WithMetadata("address", cfg.Address))
	}
	return NewHistoryStoreWithClient(client, cfg.KeyPrefix, cfg.MaxSamples), nil
}

// NewHistoryStoreWithClient 基于已有客户端创建 HistoryStore。
func NewHistoryStoreWithClient(client goredis.UniversalClient, prefix string, maxSamples int) *HistoryStore {
	if prefix == "" {
		prefix = "swarmflow:history"
	}
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &HistoryStore{client: client, prefix: prefix, max: int64(maxSamples)}
}

// Append 写入一个采样点并裁剪到最大长度。
func (s *HistoryStore) Append(ctx context.Context, series string, point ai.HistoryPoint) error {
	payload, err := json.Marshal(point)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化采样点失败")
	}
	key := s.key(series)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, s.max-1)
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 历史失败", xerrors.WithMetadata("key", key))
	}
	return nil
}

// Recent 按时间正序返回最近 n 个采样点，n<=0 时返回全部保留的采样点。
func (s *HistoryStore) Recent(ctx context.Context, series string, n int) ([]ai.HistoryPoint, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n) - 1
	}
	key := s.key(series)
	values, err := s.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 历史失败", xerrors.WithMetadata("key", key))
	}
	return decodeNewestFirst(values)
}

// Close 关闭 Redis 连接。
func (s *HistoryStore) Close() error {
	return s.client.Close()
}

func (s *HistoryStore) key(series string) string {
	return fmt.Sprintf("%s:%s", s.prefix, series)
}

// decodeNewestFirst 解析 LRANGE 结果，LPUSH 使最新的点在前，返回时反转为时间正序。
func decodeNewestFirst(values []string) ([]ai.HistoryPoint, error) {
	points := make([]ai.HistoryPoint, len(values))
	for i, raw := range values {
		var p ai.HistoryPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析历史采样点失败")
		}
		points[len(values)-1-i] = p
	}
	return points, nil
}
