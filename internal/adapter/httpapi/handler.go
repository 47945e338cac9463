package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github-roulette/internal/domain"
	"github-roulette/internal/port"
	"github-roulette/internal/service"

	"github.com/labstack/echo/v4"
)

// TokenHeader 客户端通过这个请求头传自己的 GitHub token
const TokenHeader = "X-GitHub-Token"

// Spinner 带存储的抽取
type Spinner interface {
	Spin(ctx context.Context, req service.SpinRequest) (*domain.DiscoveryResult, error)
}

// Handler 所有 /api 路由
type Handler struct {
	engine   service.Discoverer
	roulette Spinner
	store    port.Store
	envToken string
}

// NewHandler envToken 是请求没带 token 时的兜底凭据
func NewHandler(engine service.Discoverer, roulette Spinner, store port.Store, envToken string) *Handler {
	return &Handler{
		engine:   engine,
		roulette: roulette,
		store:    store,
		envToken: envToken,
	}
}

// Register 挂载路由
func (h *Handler) Register(g *echo.Group) {
	g.GET("/discover", h.Discover)
	g.POST("/spin", h.Spin)

	g.GET("/saved", h.ListSaved)
	g.POST("/saved", h.SaveRepo)
	g.DELETE("/saved/:id", h.RemoveSaved)

	g.GET("/seen", h.ListSeen)
	g.DELETE("/seen", h.ClearSeen)

	g.GET("/genres", h.GetGenres)
	g.PUT("/genres", h.SaveGenres)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.SaveSettings)

	g.GET("/export", h.Export)
	g.POST("/import", h.Import)
}

// Discover 无状态的一次发现，上游失败也返回 200 和同样的结果结构
func (h *Handler) Discover(c echo.Context) error {
	opts, err := discoverQuery(c)
	if err != nil {
		return respondError(c, err)
	}

	credential := c.Request().Header.Get(TokenHeader)
	if credential == "" {
		credential = h.envToken
	}

	return c.JSON(http.StatusOK, h.engine.Discover(c.Request().Context(), credential, opts))
}

// Spin 读取存储里的题材、设置和浏览历史后抽取，并记录本次展示
func (h *Handler) Spin(c echo.Context) error {
	var body spinBody
	if err := c.Bind(&body); err != nil {
		return respondError(c, invalid("body", "must be a JSON object"))
	}
	if err := body.validate(); err != nil {
		return respondError(c, err)
	}

	result, err := h.roulette.Spin(c.Request().Context(), service.SpinRequest{
		Filters:           body.Filters,
		Credential:        c.Request().Header.Get(TokenHeader),
		CandidatePoolSize: body.CandidatePoolSize,
		ResultCount:       body.ResultCount,
		Policy:            body.ExclusionPolicy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// --- 收藏 ---

func (h *Handler) ListSaved(c echo.Context) error {
	saved, err := h.store.ListSaved(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) SaveRepo(c echo.Context) error {
	var repo domain.SavedRepo
	if err := c.Bind(&repo); err != nil {
		return respondError(c, invalid("body", "must be a JSON object"))
	}
	if repo.ID <= 0 || repo.FullName == "" {
		return respondError(c, invalid("body", "id and full_name are required"))
	}
	if err := h.store.SaveRepo(c.Request().Context(), &repo); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, repo)
}

func (h *Handler) RemoveSaved(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return respondError(c, invalid("id", "must be an integer"))
	}
	if err := h.store.RemoveSaved(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- 浏览历史 ---

func (h *Handler) ListSeen(c echo.Context) error {
	seen, err := h.store.ListSeen(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, seen)
}

func (h *Handler) ClearSeen(c echo.Context) error {
	if err := h.store.ClearSeen(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	log.Println("[API] 🧹 浏览历史已清空")
	return c.NoContent(http.StatusNoContent)
}

// --- 题材 ---

func (h *Handler) GetGenres(c echo.Context) error {
	genres, err := h.store.GetGenres(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, genres)
}

func (h *Handler) SaveGenres(c echo.Context) error {
	var genres []domain.Genre
	if err := c.Bind(&genres); err != nil {
		return respondError(c, invalid("body", "must be a JSON array of genres"))
	}
	if genres == nil {
		genres = []domain.Genre{}
	}
	if err := validateGenres(genres); err != nil {
		return respondError(c, err)
	}
	if err := h.store.SaveGenres(c.Request().Context(), genres); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, genres)
}

// --- 设置 ---

// GetSettings 不回传保存的 token，只告诉前端是否已配置
func (h *Handler) GetSettings(c echo.Context) error {
	settings, err := h.store.GetSettings(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(settings))
}

// SaveSettings githubToken 缺省时保留现有 token，传空串表示清除
func (h *Handler) SaveSettings(c echo.Context) error {
	var update settingsUpdate
	if err := c.Bind(&update); err != nil {
		return respondError(c, invalid("body", "must be a JSON object"))
	}

	settings := &domain.Settings{
		SeenWindowSize:  update.SeenWindowSize,
		ExclusionPolicy: update.ExclusionPolicy,
	}
	if err := validateSettings(settings); err != nil {
		return respondError(c, err)
	}

	ctx := c.Request().Context()
	if update.GitHubToken != nil {
		settings.GitHubToken = *update.GitHubToken
	} else {
		current, err := h.store.GetSettings(ctx)
		if err != nil {
			return respondError(c, err)
		}
		settings.GitHubToken = current.GitHubToken
	}

	if err := h.store.SaveSettings(ctx, settings); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(settings))
}

type settingsUpdate struct {
	SeenWindowSize  int                    `json:"seenWindowSize"`
	ExclusionPolicy domain.ExclusionPolicy `json:"exclusionPolicy"`
	GitHubToken     *string                `json:"githubToken"`
}

type settingsView struct {
	SeenWindowSize  int                    `json:"seenWindowSize"`
	ExclusionPolicy domain.ExclusionPolicy `json:"exclusionPolicy"`
	HasGitHubToken  bool                   `json:"hasGitHubToken"`
}

func viewOf(s *domain.Settings) settingsView {
	return settingsView{
		SeenWindowSize:  s.SeenWindowSize,
		ExclusionPolicy: s.ExclusionPolicy.OrDefault(),
		HasGitHubToken:  s.GitHubToken != "",
	}
}

// --- 导入导出 ---

// Export 导出收藏、题材和设置，token 不导出
func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()

	saved, err := h.store.ListSaved(ctx)
	if err != nil {
		return respondError(c, err)
	}
	genres, err := h.store.GetGenres(ctx)
	if err != nil {
		return respondError(c, err)
	}
	settings, err := h.store.GetSettings(ctx)
	if err != nil {
		return respondError(c, err)
	}
	exported := *settings
	exported.GitHubToken = ""

	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="github-roulette-`+time.Now().Format("20060102")+`.json"`)
	return c.JSON(http.StatusOK, domain.Bundle{Saved: saved, Genres: genres, Settings: &exported})
}

// Import 先校验整个数据包再在一个事务里写入；包里没有 token 时保留现有 token
func (h *Handler) Import(c echo.Context) error {
	var b domain.Bundle
	if err := c.Bind(&b); err != nil {
		return respondError(c, invalid("body", "must be a JSON object"))
	}
	if err := validateBundle(&b); err != nil {
		return respondError(c, err)
	}

	ctx := c.Request().Context()
	if b.Settings.GitHubToken == "" {
		current, err := h.store.GetSettings(ctx)
		if err != nil {
			return respondError(c, err)
		}
		b.Settings.GitHubToken = current.GitHubToken
	}

	if err := h.store.ImportBundle(ctx, &b); err != nil {
		return respondError(c, err)
	}

	log.Printf("[API] 📥 导入完成: %d 个收藏, %d 个题材", len(b.Saved), len(b.Genres))
	return c.JSON(http.StatusOK, map[string]int{
		"saved":  len(b.Saved),
		"genres": len(b.Genres),
	})
}

// Health 存活检查
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
