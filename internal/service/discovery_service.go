package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"
)

// DiscoveryService 发现引擎：构造查询 → 一次搜索 → 读配额 → 排除 → 抽样
// 不持有可变状态，可并发调用；不做重试，重试策略属于调用方
type DiscoveryService struct {
	searcher port.Searcher
	builder  *QueryBuilder
	sampler  *Sampler
	nowFunc  func() time.Time
}

// NewDiscoveryService 创建发现引擎
func NewDiscoveryService(searcher port.Searcher) *DiscoveryService {
	return &DiscoveryService{
		searcher: searcher,
		builder:  NewQueryBuilder(),
		sampler:  NewSampler(),
		nowFunc:  time.Now,
	}
}

// Discover 执行一次发现
// 任何失败都以同一结果形状返回，调用方不需要处理 error
func (d *DiscoveryService) Discover(ctx context.Context, credential string, opts domain.DiscoverOptions) *domain.DiscoveryResult {
	opts = opts.WithDefaults()

	query := d.builder.Build(opts.Filters, opts.Genres)

	resp, err := d.searcher.Search(ctx, domain.SearchRequest{
		Query:      query,
		PerPage:    opts.CandidatePoolSize,
		Credential: credential,
	})
	if err != nil || resp == nil {
		return &domain.DiscoveryResult{
			Repos:     []domain.CandidateRepo{},
			RateLimit: FallbackRateLimit(d.now()),
			Error:     transportMessage(err),
		}
	}

	rateLimit := ReadRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return &domain.DiscoveryResult{
			Repos:     []domain.CandidateRepo{},
			RateLimit: rateLimit,
			Error:     RateLimitMessage(rateLimit),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.DiscoveryResult{
			Repos:     []domain.CandidateRepo{},
			RateLimit: rateLimit,
			Error:     fmt.Sprintf("%d %s", resp.StatusCode, resp.Body),
		}
	}

	repos := d.sampler.Sample(resp.Repos, opts.ExcludeIDs, opts.ResultCount, opts.Policy)

	result := &domain.DiscoveryResult{
		Repos:     repos,
		RateLimit: rateLimit,
	}
	if len(repos) < opts.ResultCount {
		result.Shortfall = opts.ResultCount - len(repos)
	}
	return result
}

// RateLimitMessage 配额耗尽时给用户看的提示，重置时间按本地时区显示
func RateLimitMessage(rl domain.RateLimitSnapshot) string {
	return "Rate limit exceeded. Resets at " + rl.ResetAt.Local().Format("15:04:05")
}

// transportMessage 去掉 AppError 和 *url.Error 外壳，保留传输层原始错误信息
func transportMessage(err error) string {
	if err == nil {
		return "empty response from search transport"
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		err = appErr.Err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func (d *DiscoveryService) now() time.Time {
	if d.nowFunc != nil {
		return d.nowFunc()
	}
	return time.Now()
}
