package httpapi

import (
	"encoding/json"
	"strconv"
	"strings"

	"github-roulette/internal/domain"

	"github.com/labstack/echo/v4"
)

// discoverQuery 解析 GET /api/discover 的查询参数
// 缺省的参数走引擎默认值，出现但不合法的参数一律返回 ValidationError
func discoverQuery(c echo.Context) (domain.DiscoverOptions, error) {
	var opts domain.DiscoverOptions

	filters := &domain.Filters{
		Genre:    strings.TrimSpace(c.QueryParam("genre")),
		Language: strings.TrimSpace(c.QueryParam("language")),
		OS:       strings.TrimSpace(c.QueryParam("os")),
	}
	minStars, err := optionalInt(c, "minStars")
	if err != nil {
		return opts, err
	}
	if minStars < 0 {
		return opts, invalid("minStars", "must be >= 0")
	}
	filters.MinStars = minStars
	if !filters.IsEmpty() {
		opts.Filters = filters
	}

	if raw := c.QueryParam("genres"); raw != "" {
		var genres []domain.Genre
		if err := json.Unmarshal([]byte(raw), &genres); err != nil {
			return opts, invalid("genres", "must be a JSON array of genres")
		}
		opts.Genres = genres
	}

	if raw := c.QueryParam("excludeIds"); raw != "" {
		var ids []int64
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return opts, invalid("excludeIds", "must be a JSON array of numbers")
		}
		opts.ExcludeIDs = ids
	}

	if _, ok := c.QueryParams()["candidatePoolSize"]; ok {
		size, err := optionalInt(c, "candidatePoolSize")
		if err != nil {
			return opts, err
		}
		opts.CandidatePoolSize = size
		if err := checkPoolSize(size); err != nil {
			return opts, err
		}
	}

	if _, ok := c.QueryParams()["resultCount"]; ok {
		count, err := optionalInt(c, "resultCount")
		if err != nil {
			return opts, err
		}
		opts.ResultCount = count
		if err := checkResultCount(count); err != nil {
			return opts, err
		}
	}

	opts.Policy = domain.ExclusionPolicy(c.QueryParam("exclusionPolicy"))
	if !opts.Policy.Valid() {
		return opts, invalid("exclusionPolicy", "must be %q or %q", domain.PolicyStrict, domain.PolicyBackfill)
	}

	return opts, nil
}

// optionalInt 参数缺省返回 0
func optionalInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name, "must be an integer")
	}
	return n, nil
}

func checkPoolSize(size int) error {
	if size < 1 || size > domain.MaxCandidatePoolSize {
		return invalid("candidatePoolSize", "must be between 1 and %d", domain.MaxCandidatePoolSize)
	}
	return nil
}

func checkResultCount(count int) error {
	if count < 1 {
		return invalid("resultCount", "must be >= 1")
	}
	return nil
}

// spinBody POST /api/spin 的请求体，数值为 0 表示使用默认值
type spinBody struct {
	Filters           *domain.Filters        `json:"filters"`
	CandidatePoolSize int                    `json:"candidatePoolSize"`
	ResultCount       int                    `json:"resultCount"`
	ExclusionPolicy   domain.ExclusionPolicy `json:"exclusionPolicy"`
}

func (b spinBody) validate() error {
	if b.Filters != nil && b.Filters.MinStars < 0 {
		return invalid("filters.minStars", "must be >= 0")
	}
	if b.CandidatePoolSize != 0 {
		if err := checkPoolSize(b.CandidatePoolSize); err != nil {
			return err
		}
	}
	if b.ResultCount < 0 {
		return invalid("resultCount", "must be >= 1")
	}
	if !b.ExclusionPolicy.Valid() {
		return invalid("exclusionPolicy", "must be %q or %q", domain.PolicyStrict, domain.PolicyBackfill)
	}
	return nil
}

// validateGenres 目录里 ID 唯一且非空，名称非空
func validateGenres(genres []domain.Genre) error {
	seen := make(map[string]struct{}, len(genres))
	for i, g := range genres {
		if strings.TrimSpace(g.ID) == "" {
			return invalid("genres", "genre #%d has an empty id", i)
		}
		if strings.TrimSpace(g.Name) == "" {
			return invalid("genres", "genre %q has an empty name", g.ID)
		}
		if _, dup := seen[g.ID]; dup {
			return invalid("genres", "duplicate genre id %q", g.ID)
		}
		seen[g.ID] = struct{}{}
	}
	return nil
}

func validateSettings(s *domain.Settings) error {
	if s.SeenWindowSize < 0 {
		return invalid("seenWindowSize", "must be >= 0")
	}
	if !s.ExclusionPolicy.Valid() {
		return invalid("exclusionPolicy", "must be %q or %q", domain.PolicyStrict, domain.PolicyBackfill)
	}
	return nil
}

func validateBundle(b *domain.Bundle) error {
	if b.Saved == nil || b.Genres == nil || b.Settings == nil {
		return invalid("bundle", "saved, genres and settings are all required")
	}
	for i, repo := range b.Saved {
		if repo.ID <= 0 || repo.FullName == "" {
			return invalid("saved", "entry #%d needs an id and full_name", i)
		}
	}
	if err := validateGenres(b.Genres); err != nil {
		return err
	}
	return validateSettings(b.Settings)
}
