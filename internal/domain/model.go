package domain

import "time"

// Genre 用户自定义的题材：一组 topic 的命名集合
// Topics 的顺序有意义，构造查询时只取第一个
type Genre struct {
	ID       string   `json:"id" gorm:"primaryKey"`
	Name     string   `json:"name"`
	Topics   []string `json:"topics" gorm:"serializer:json"`
	Position int      `json:"-"` // 目录内的排序位置
}

// Filters 单次发现请求的筛选条件，零值表示未设置
type Filters struct {
	Genre    string `json:"genre,omitempty"`
	Language string `json:"language,omitempty"`
	OS       string `json:"os,omitempty"`
	MinStars int    `json:"minStars,omitempty"`
}

// IsEmpty 判断是否一个筛选条件都没有
func (f *Filters) IsEmpty() bool {
	return f == nil || (f.Genre == "" && f.Language == "" && f.OS == "" && f.MinStars <= 0)
}

// CandidateRepo 搜索接口返回的原始条目 (只读快照)
type CandidateRepo struct {
	ID              int64     `json:"id"`
	FullName        string    `json:"full_name"`
	HTMLURL         string    `json:"html_url"`
	Description     string    `json:"description"`
	StargazersCount int       `json:"stargazers_count"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	UpdatedAt       time.Time `json:"updated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// RateLimitSnapshot 某一时刻的配额视图
type RateLimitSnapshot struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	Reset     int64     `json:"reset"` // Unix 秒
	ResetAt   time.Time `json:"resetAt"`
}

// DiscoveryResult 一次发现调用的结果
// 所有路径都返回同一形状：Repos 必有 (可能为空)，RateLimit 必有 (可能是合成的)，Error 仅失败时出现
type DiscoveryResult struct {
	Repos     []CandidateRepo   `json:"repos"`
	RateLimit RateLimitSnapshot `json:"rateLimit"`
	Error     string            `json:"error,omitempty"`

	// Shortfall 成功但不足请求数量时缺少的条数
	Shortfall int `json:"shortfall,omitempty"`
}

// ExclusionPolicy 过滤后候选不足时的处理策略
type ExclusionPolicy string

const (
	// PolicyStrict 从不把已排除的仓库放回来，允许少返回
	PolicyStrict ExclusionPolicy = "strict"
	// PolicyBackfill 过滤后不够时退回到未过滤的候选池，保证数量
	PolicyBackfill ExclusionPolicy = "backfill"
)

// Valid 判断策略是否合法 (空值视为默认 strict)
func (p ExclusionPolicy) Valid() bool {
	return p == "" || p == PolicyStrict || p == PolicyBackfill
}

// OrDefault 空值返回 strict
func (p ExclusionPolicy) OrDefault() ExclusionPolicy {
	if p == "" {
		return PolicyStrict
	}
	return p
}

const (
	DefaultCandidatePoolSize = 50
	DefaultResultCount       = 5
	MaxCandidatePoolSize     = 100 // GitHub 单页上限
	DefaultSeenWindowSize    = 100
)

// DiscoverOptions 发现引擎的输入
type DiscoverOptions struct {
	Filters           *Filters
	Genres            []Genre
	ExcludeIDs        []int64
	CandidatePoolSize int
	ResultCount       int
	Policy            ExclusionPolicy
}

// WithDefaults 返回补齐默认值后的副本
func (o DiscoverOptions) WithDefaults() DiscoverOptions {
	if o.CandidatePoolSize <= 0 {
		o.CandidatePoolSize = DefaultCandidatePoolSize
	}
	if o.ResultCount <= 0 {
		o.ResultCount = DefaultResultCount
	}
	o.Policy = o.Policy.OrDefault()
	return o
}

// SearchRequest 发给搜索接口的一次请求
type SearchRequest struct {
	Query      string
	PerPage    int
	Credential string
}

// SearchResponse 搜索接口的原始响应
// 非 2xx 也会带上 Header，调用方据此读取配额
type SearchResponse struct {
	StatusCode int
	Header     map[string][]string
	Body       string
	Repos      []CandidateRepo
}

// SavedRepo 用户收藏的仓库
type SavedRepo struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	SavedAt     time.Time `json:"savedAt"`
}

// SeenRepo 已展示过的仓库记录
type SeenRepo struct {
	ID     uint      `json:"-" gorm:"primaryKey"`
	RepoID int64     `json:"id" gorm:"index"`
	SeenAt time.Time `json:"seenAt" gorm:"index"`
}

// Settings 用户设置 (单行)
type Settings struct {
	ID              uint            `json:"-" gorm:"primaryKey"`
	SeenWindowSize  int             `json:"seenWindowSize"`
	GitHubToken     string          `json:"githubToken,omitempty"`
	ExclusionPolicy ExclusionPolicy `json:"exclusionPolicy,omitempty"`
}

// DefaultSettings 未保存过设置时使用
func DefaultSettings() *Settings {
	return &Settings{
		ID:              1,
		SeenWindowSize:  DefaultSeenWindowSize,
		ExclusionPolicy: PolicyStrict,
	}
}

// DefaultGenres 首次使用时的四个预置题材
func DefaultGenres() []Genre {
	return []Genre{
		{ID: "llm", Name: "LLM/AI", Topics: []string{"llm", "ai", "machine-learning", "deep-learning"}, Position: 0},
		{ID: "web", Name: "Web Dev", Topics: []string{"web", "javascript", "react", "frontend"}, Position: 1},
		{ID: "game", Name: "Games", Topics: []string{"game", "gamedev", "unity", "game-engine"}, Position: 2},
		{ID: "cli", Name: "CLI Tools", Topics: []string{"cli", "command-line", "terminal"}, Position: 3},
	}
}

// FindGenre 按 ID 查找题材
func FindGenre(genres []Genre, id string) (Genre, bool) {
	for _, g := range genres {
		if g.ID == id {
			return g, true
		}
	}
	return Genre{}, false
}

// Bundle 导入导出的数据包
type Bundle struct {
	Saved    []SavedRepo `json:"saved"`
	Genres   []Genre     `json:"genres"`
	Settings *Settings   `json:"settings"`
}
