package service

import (
	"math/rand/v2"

	"github-roulette/internal/domain"
)

// Sampler 从候选池中排除已看过的仓库并均匀随机抽样
type Sampler struct {
	intn func(n int) int
}

// NewSampler 使用全局随机源
func NewSampler() *Sampler {
	return &Sampler{intn: rand.IntN}
}

// Sample 抽取至多 n 个仓库
//
// strict: 只从过滤后的集合抽，可能少于 n 个。
// backfill: 过滤后不足 n 个时退回未过滤的候选池。
// 同一 ID 在输出中最多出现一次，输入切片不会被修改。
func (s *Sampler) Sample(candidates []domain.CandidateRepo, excludeIDs []int64, n int, policy domain.ExclusionPolicy) []domain.CandidateRepo {
	if n <= 0 || len(candidates) == 0 {
		return []domain.CandidateRepo{}
	}

	pool := dedupe(candidates)
	filtered := excludeSeen(pool, excludeIDs)

	if policy.OrDefault() == domain.PolicyBackfill && len(filtered) < n {
		filtered = pool
	}

	s.shuffle(filtered)

	if n > len(filtered) {
		n = len(filtered)
	}
	return filtered[:n]
}

// shuffle Fisher-Yates 原地洗牌
func (s *Sampler) shuffle(repos []domain.CandidateRepo) {
	intn := s.intn
	if intn == nil {
		intn = rand.IntN
	}
	for i := len(repos) - 1; i > 0; i-- {
		j := intn(i + 1)
		repos[i], repos[j] = repos[j], repos[i]
	}
}

// dedupe 按 ID 去重并复制，保留首次出现的顺序
func dedupe(candidates []domain.CandidateRepo) []domain.CandidateRepo {
	seen := make(map[int64]struct{}, len(candidates))
	out := make([]domain.CandidateRepo, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func excludeSeen(pool []domain.CandidateRepo, excludeIDs []int64) []domain.CandidateRepo {
	if len(excludeIDs) == 0 {
		out := make([]domain.CandidateRepo, len(pool))
		copy(out, pool)
		return out
	}

	excluded := make(map[int64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	out := make([]domain.CandidateRepo, 0, len(pool))
	for _, c := range pool {
		if _, ok := excluded[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}
