package service

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github-roulette/internal/domain"
)

const seedAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// osTopics 操作系统到候选 topic 的映射，只取第一个
var osTopics = map[string][]string{
	"linux":   {"linux", "ubuntu", "debian"},
	"windows": {"windows", "win32"},
	"macos":   {"macos", "darwin"},
	"android": {"android"},
	"ios":     {"ios", "swift"},
}

// QueryBuilder 根据筛选条件和题材目录构造 GitHub 搜索语句
type QueryBuilder struct {
	intn func(n int) int
}

// NewQueryBuilder 使用全局随机源
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{intn: rand.IntN}
}

// BuildSearchQuery 用默认随机源构造查询
func BuildSearchQuery(filters *domain.Filters, genres []domain.Genre) string {
	return NewQueryBuilder().Build(filters, genres)
}

// Build 构造查询语句
//
// 子句顺序固定: 题材 topic、language、系统 topic、stars。
// 题材和系统都只取第一个 topic，调整题材里 topic 的顺序即可决定优先级。
// 没有任何子句时返回一个 1-3 位的随机种子，让每次结果不同。
func (b *QueryBuilder) Build(filters *domain.Filters, genres []domain.Genre) string {
	var parts []string

	if filters != nil {
		if filters.Genre != "" {
			if genre, ok := domain.FindGenre(genres, filters.Genre); ok && len(genre.Topics) > 0 {
				parts = append(parts, "topic:"+genre.Topics[0])
			}
		}

		if filters.Language != "" {
			parts = append(parts, "language:"+filters.Language)
		}

		if filters.OS != "" {
			parts = append(parts, "topic:"+OSTopic(filters.OS))
		}

		if filters.MinStars > 0 {
			parts = append(parts, fmt.Sprintf("stars:>=%d", filters.MinStars))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, b.randomSeed())
	}

	return strings.Join(parts, " ")
}

// OSTopic 返回系统对应的首选 topic，未知系统原样返回
func OSTopic(os string) string {
	if topics, ok := osTopics[strings.ToLower(os)]; ok {
		return topics[0]
	}
	return os
}

func (b *QueryBuilder) randomSeed() string {
	intn := b.intn
	if intn == nil {
		intn = rand.IntN
	}

	length := intn(3) + 1
	seed := make([]byte, length)
	for i := range seed {
		seed[i] = seedAlphabet[intn(len(seedAlphabet))]
	}
	return string(seed)
}
