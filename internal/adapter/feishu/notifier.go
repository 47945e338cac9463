package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"
)

var _ port.Notifier = (*Notifier)(nil)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
	retryOpts  []common.Option
}

// NewNotifier retryOpts 不传时按 3 次重试、500ms 起步退避
func NewNotifier(webhook string, retryOpts ...common.Option) *Notifier {
	if webhook == "" {
		log.Println("⚠️ 警告: 飞书 Webhook 为空，推送功能将无法工作！")
	}
	if len(retryOpts) == 0 {
		retryOpts = []common.Option{
			common.WithMaxRetries(3),
			common.WithInitialDelay(500 * time.Millisecond),
		}
	}
	return &Notifier{
		webhookURL: webhook,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryOpts:  retryOpts,
	}
}

// Notify 把一次抽取的结果推送成飞书卡片 (Schema 2.0)
func (n *Notifier) Notify(ctx context.Context, repos []domain.CandidateRepo) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}
	if len(repos) == 0 {
		return nil
	}

	body, err := json.Marshal(buildCard(repos))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造卡片失败", err)
	}

	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return common.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.httpClient.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			apiErr := fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
			// 4xx 重试也不会成功
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return common.Permanent(apiErr)
			}
			return apiErr
		}
		return nil
	}, n.retryOpts...)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送请求失败", err)
	}

	log.Printf("[Feishu] ✅ 已推送 %d 个仓库", len(repos))
	return nil
}

func buildCard(repos []domain.CandidateRepo) map[string]interface{} {
	title := fmt.Sprintf("🎰 今日轮盘: %d 个仓库", len(repos))

	elements := make([]map[string]interface{}, 0, len(repos)*2)
	for _, repo := range repos {
		elements = append(elements,
			map[string]interface{}{
				"tag":       "markdown",
				"content":   repoMarkdown(repo),
				"text_size": "normal",
			},
			map[string]interface{}{
				"tag": "button",
				"text": map[string]interface{}{
					"tag":     "plain_text",
					"content": "🔗 查看源码",
				},
				"type": "primary",
				"behaviors": []map[string]interface{}{
					{
						"type":        "open_url",
						"default_url": repo.HTMLURL,
					},
				},
			},
		)
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "blue",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements":  elements,
			},
		},
	}
}

func repoMarkdown(repo domain.CandidateRepo) string {
	language := repo.Language
	if language == "" {
		language = "未知"
	}
	description := repo.Description
	if description == "" {
		description = "(无描述)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", repo.FullName)
	fmt.Fprintf(&sb, "**⭐ Stars:** %d  |  **语言:** %s  |  **最近更新:** %s\n",
		repo.StargazersCount, language, repo.UpdatedAt.Format("2006-01-02"))
	if len(repo.Topics) > 0 {
		fmt.Fprintf(&sb, "**🏷️ Topics:** %s\n", strings.Join(repo.Topics, ", "))
	}
	fmt.Fprintf(&sb, "\n%s\n", description)
	return sb.String()
}
