package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/model"
)

const (
	// Redis键前缀
	SessionKey = "session:"
	ResultsKey = "results:current"

	// TouchSessionScript 会话存在时续期并返回内容，不存在时返回 nil
	TouchSessionScript = `
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return false
		end
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		return redis.call('GET', KEYS[1])
	`

	touchSession = "touchSession"
)

var ErrSessionNotFound = errors.New("会话不存在或已过期")

type RedisRepository struct {
	client       *redis.Client
	resultsTTL   time.Duration
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

func NewRedisRepository(ctx context.Context, cfg config.RedisConfig) (*RedisRepository, error) {
	// 创建Redis客户端（普通客户端，用于数据存储）
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	return newRedisRepository(ctx, client, cfg.ResultsTTL)
}

func newRedisRepository(ctx context.Context, client *redis.Client, resultsTTL time.Duration) (*RedisRepository, error) {
	repo := &RedisRepository{
		client:       client,
		resultsTTL:   resultsTTL,
		scriptHashes: make(map[string]string),
	}

	// 预加载Lua脚本
	if err := repo.preloadScripts(ctx); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}
	return repo, nil
}

// preloadScripts 预加载所有Lua脚本
func (r *RedisRepository) preloadScripts(ctx context.Context) error {
	sha1, err := r.client.ScriptLoad(ctx, TouchSessionScript).Result()
	if err != nil {
		return fmt.Errorf("加载会话续期脚本失败: %w", err)
	}
	r.scriptHashes[touchSession] = sha1
	return nil
}

// Client 供 Redlock 等组件复用连接
func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

// SaveSession 保存会话并设置过期时间
func (r *RedisRepository) SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	if err := r.client.Set(ctx, SessionKey+s.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("保存会话失败: %w", err)
	}
	return nil
}

// TouchSession 读取会话并把过期时间顺延 ttl
func (r *RedisRepository) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) (*model.Session, error) {
	key := SessionKey + sessionID

	result, err := r.evalScript(ctx, touchSession, TouchSessionScript, []string{key}, ttl.Milliseconds())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("执行会话续期脚本失败: %w", err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("LUA脚本返回类型错误")
	}

	var s model.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("解析会话失败: %w", err)
	}
	return &s, nil
}

// DeleteSession 删除会话
func (r *RedisRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, SessionKey+sessionID).Err(); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

// evalScript 使用EVALSHA执行预加载脚本，脚本缓存被清空时重新加载
func (r *RedisRepository) evalScript(ctx context.Context, name, src string, keys []string, args ...interface{}) (interface{}, error) {
	sha1, ok := r.scriptHashes[name]
	if !ok {
		return nil, fmt.Errorf("脚本未预加载")
	}

	result, err := r.client.EvalSha(ctx, sha1, keys, args...).Result()
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		sha1, err = r.client.ScriptLoad(ctx, src).Result()
		if err != nil {
			return nil, fmt.Errorf("重新加载脚本失败: %w", err)
		}
		r.scriptHashes[name] = sha1
		result, err = r.client.EvalSha(ctx, sha1, keys, args...).Result()
	}
	return result, err
}

// GetResults 从缓存获取计票结果
func (r *RedisRepository) GetResults(ctx context.Context) (*model.Results, bool, error) {
	data, err := r.client.Get(ctx, ResultsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取计票结果缓存失败: %w", err)
	}

	var res model.Results
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, false, fmt.Errorf("解析计票结果缓存失败: %w", err)
	}
	return &res, true, nil
}

// SetResults 设置计票结果缓存
func (r *RedisRepository) SetResults(ctx context.Context, res *model.Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("序列化计票结果失败: %w", err)
	}
	if err := r.client.Set(ctx, ResultsKey, data, r.resultsTTL).Err(); err != nil {
		return fmt.Errorf("设置计票结果缓存失败: %w", err)
	}
	return nil
}

// InvalidateResults 删除计票结果缓存
func (r *RedisRepository) InvalidateResults(ctx context.Context) error {
	if err := r.client.Del(ctx, ResultsKey).Err(); err != nil {
		return fmt.Errorf("删除计票结果缓存失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
