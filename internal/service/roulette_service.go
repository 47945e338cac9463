package service

import (
	"context"
	"log"
	"time"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"
)

// Discoverer 发现引擎的抽象，方便替换
type Discoverer interface {
	Discover(ctx context.Context, credential string, opts domain.DiscoverOptions) *domain.DiscoveryResult
}

// SpinRequest 一次带存储的抽取
type SpinRequest struct {
	Filters           *domain.Filters
	Credential        string // 显式凭据，优先级最高
	CandidatePoolSize int
	ResultCount       int
	Policy            domain.ExclusionPolicy // 为空时使用设置里的策略
}

// RouletteService 引擎的调用方：从存储读取题材、设置和最近看过的仓库，
// 调用引擎后把新展示的仓库记入历史
type RouletteService struct {
	engine   Discoverer
	store    port.Store
	envToken string
	nowFunc  func() time.Time
}

// NewRouletteService 创建轮盘服务，envToken 是环境变量里的兜底凭据
func NewRouletteService(engine Discoverer, store port.Store, envToken string) *RouletteService {
	return &RouletteService{
		engine:   engine,
		store:    store,
		envToken: envToken,
		nowFunc:  time.Now,
	}
}

// Spin 执行一次抽取
// 只有读取存储失败才返回 error；引擎的失败体现在结果的 Error 字段里
func (r *RouletteService) Spin(ctx context.Context, req SpinRequest) (*domain.DiscoveryResult, error) {
	settings, err := r.store.GetSettings(ctx)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取设置失败", err)
	}

	genres, err := r.store.GetGenres(ctx)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取题材失败", err)
	}

	excludeIDs, err := r.store.SeenIDs(ctx, settings.SeenWindowSize)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取浏览历史失败", err)
	}

	policy := req.Policy
	if policy == "" {
		policy = settings.ExclusionPolicy
	}

	result := r.engine.Discover(ctx, r.credential(req.Credential, settings), domain.DiscoverOptions{
		Filters:           req.Filters,
		Genres:            genres,
		ExcludeIDs:        excludeIDs,
		CandidatePoolSize: req.CandidatePoolSize,
		ResultCount:       req.ResultCount,
		Policy:            policy,
	})

	if result.Error != "" {
		log.Printf("[Roulette] ⚠️ 本次抽取失败: %s (剩余配额 %d/%d)", result.Error, result.RateLimit.Remaining, result.RateLimit.Limit)
		return result, nil
	}

	if len(result.Repos) > 0 {
		ids := make([]int64, 0, len(result.Repos))
		for _, repo := range result.Repos {
			ids = append(ids, repo.ID)
		}
		// 记录失败不影响本次结果
		if err := r.store.AddSeen(ctx, r.nowFunc(), ids...); err != nil {
			log.Printf("[Roulette] ⚠️ 记录浏览历史失败: %v", err)
		}
	}

	if result.Shortfall > 0 {
		log.Printf("[Roulette] 候选不足，少返回 %d 个", result.Shortfall)
	}

	return result, nil
}

// credential 显式凭据 > 设置里保存的 token > 环境变量
func (r *RouletteService) credential(explicit string, settings *domain.Settings) string {
	if explicit != "" {
		return explicit
	}
	if settings != nil && settings.GitHubToken != "" {
		return settings.GitHubToken
	}
	return r.envToken
}
