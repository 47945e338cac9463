package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com/"
	mediaTypeV3    = "application/vnd.github.v3+json"
)

var _ port.Searcher = (*Searcher)(nil)

// Searcher 实现了 port.Searcher 接口
type Searcher struct {
	httpClient *http.Client
	baseURL    *url.URL
}

// NewSearcher 初始化搜索通道
// baseURL 为空时使用 api.github.com；httpClient 为空时使用默认客户端 (不设超时，超时由调用方的 ctx 控制)
func NewSearcher(baseURL string, httpClient *http.Client) (*Searcher, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("解析 GitHub API 地址失败: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Searcher{httpClient: httpClient, baseURL: u}, nil
}

// Search 发一次 search/repositories 请求
// 每次调用新建 go-github 客户端，这样客户端内部记住的配额状态不会影响下一次调用
func (s *Searcher) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	client := github.NewClient(s.clientFor(req.Credential))
	client.BaseURL = s.baseURL

	opts := &github.SearchOptions{
		Sort:  "updated",
		Order: "desc",
		ListOptions: github.ListOptions{
			PerPage: req.PerPage,
		},
	}

	result, resp, err := client.Search.Repositories(ctx, req.Query, opts)
	if resp == nil || resp.Response == nil {
		if err == nil {
			err = errors.New("GitHub 没有返回响应")
		}
		return nil, common.WrapError(common.ErrCodeTransport, "搜索请求失败", err)
	}

	out := &domain.SearchResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	if err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			// 2xx 但响应体解析失败，等同于没拿到可用响应
			return nil, common.WrapError(common.ErrCodeTransport, "解析搜索结果失败", err)
		}
		out.Body = errorBody(resp.Response, err)
		return out, nil
	}

	out.Repos = make([]domain.CandidateRepo, 0, len(result.Repositories))
	for _, item := range result.Repositories {
		out.Repos = append(out.Repos, toCandidate(item))
	}
	return out, nil
}

// clientFor 统一改回 v3 的 Accept；有凭据时用 oauth2 挂上 "Authorization: token <credential>"
func (s *Searcher) clientFor(credential string) *http.Client {
	base := s.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var transport http.RoundTripper = &acceptTransport{base: base}

	if credential != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: credential, TokenType: "token"},
		)
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}

	return &http.Client{
		Transport:     transport,
		Timeout:       s.httpClient.Timeout,
		CheckRedirect: s.httpClient.CheckRedirect,
		Jar:           s.httpClient.Jar,
	}
}

// acceptTransport go-github 的搜索接口会带 topics 预览版的 Accept，这里固定为 v3
type acceptTransport struct {
	base http.RoundTripper
}

func (t *acceptTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Accept", mediaTypeV3)
	return t.base.RoundTrip(r)
}

// errorBody go-github 在 CheckResponse 里会把错误响应体重新填回 Body
func errorBody(resp *http.Response, apiErr error) string {
	if resp.Body != nil {
		if data, err := io.ReadAll(resp.Body); err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}

	var errResp *github.ErrorResponse
	if errors.As(apiErr, &errResp) && errResp.Message != "" {
		return errResp.Message
	}
	var rateErr *github.RateLimitError
	if errors.As(apiErr, &rateErr) && rateErr.Message != "" {
		return rateErr.Message
	}
	return http.StatusText(resp.StatusCode)
}

func toCandidate(item *github.Repository) domain.CandidateRepo {
	topics := item.Topics
	if topics == nil {
		topics = []string{}
	}
	return domain.CandidateRepo{
		ID:              item.GetID(),
		FullName:        item.GetFullName(),
		HTMLURL:         item.GetHTMLURL(),
		Description:     item.GetDescription(),
		StargazersCount: item.GetStargazersCount(),
		Language:        item.GetLanguage(),
		Topics:          topics,
		UpdatedAt:       item.GetUpdatedAt().Time,
		CreatedAt:       item.GetCreatedAt().Time,
	}
}
