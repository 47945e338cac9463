package port

import (
	"context"
	"time"

	"github-roulette/internal/domain"
)

// Searcher (搜索通道): 向 GitHub Search API 发一次请求
// 只有拿不到可用响应时 (网络失败、响应体无法解析) 才返回 error；
// 非 2xx 通过 SearchResponse.StatusCode 返回
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
}

// SavedStore 收藏列表
type SavedStore interface {
	ListSaved(ctx context.Context) ([]domain.SavedRepo, error)
	SaveRepo(ctx context.Context, repo *domain.SavedRepo) error
	RemoveSaved(ctx context.Context, id int64) error
}

// SeenStore 已展示历史
type SeenStore interface {
	AddSeen(ctx context.Context, at time.Time, ids ...int64) error
	ListSeen(ctx context.Context) ([]domain.SeenRepo, error)
	// SeenIDs 返回最近 window 条记录的仓库 ID，window 为 0 表示全部
	SeenIDs(ctx context.Context, window int) ([]int64, error)
	ClearSeen(ctx context.Context) error
}

// GenreStore 题材目录
type GenreStore interface {
	GetGenres(ctx context.Context) ([]domain.Genre, error)
	SaveGenres(ctx context.Context, genres []domain.Genre) error
}

// SettingsStore 用户设置
type SettingsStore interface {
	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings *domain.Settings) error
}

// BundleStore 整包导入，要么全部写入要么全部不写
type BundleStore interface {
	ImportBundle(ctx context.Context, b *domain.Bundle) error
}

// Store (仓库管理员): 外部持有的键值存储，引擎本身从不直接访问
type Store interface {
	SavedStore
	SeenStore
	GenreStore
	SettingsStore
	BundleStore
}

// Notifier (信使): 把一次抽取的结果推送出去 (飞书)
type Notifier interface {
	Notify(ctx context.Context, repos []domain.CandidateRepo) error
}
