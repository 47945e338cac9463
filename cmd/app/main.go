package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github-roulette/internal/adapter/feishu"
	"github-roulette/internal/adapter/github"
	"github-roulette/internal/adapter/httpapi"
	"github-roulette/internal/adapter/repository"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"
	"github-roulette/internal/service"
)

const defaultDSN = "host=localhost user=postgres password=123456 dbname=github_roulette port=5432 sslmode=disable TimeZone=Asia/Shanghai"

type config struct {
	mode        string
	addr        string
	interval    int
	filters     domain.Filters
	count       int
	pool        int
	policy      domain.ExclusionPolicy
	dsn         string
	githubToken string
	webhook     string
	apiURL      string
}

// loadConfig 命令行参数 + 环境变量
func loadConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config
	var policy string

	fs := flag.NewFlagSet("github-roulette", flag.ContinueOnError)
	fs.StringVar(&cfg.mode, "mode", "serve", "运行模式: serve (HTTP 服务) 或 spin (抽一次并输出)")
	fs.StringVar(&cfg.addr, "addr", ":8080", "HTTP 监听地址 (仅 serve 模式)")
	fs.IntVar(&cfg.interval, "interval", 0, "定时抽取间隔（分钟），0表示只执行一次 (仅 spin 模式)")
	fs.StringVar(&cfg.filters.Genre, "genre", "", "题材 ID，例如 cli")
	fs.StringVar(&cfg.filters.Language, "language", "", "编程语言，例如 go")
	fs.StringVar(&cfg.filters.OS, "os", "", "操作系统: linux / windows / macos / android / ios")
	fs.IntVar(&cfg.filters.MinStars, "min-stars", 0, "最少 star 数")
	fs.IntVar(&cfg.count, "count", domain.DefaultResultCount, "返回仓库数量")
	fs.IntVar(&cfg.pool, "pool", domain.DefaultCandidatePoolSize, "候选池大小 (1-100)")
	fs.StringVar(&policy, "policy", "", "排除策略: strict 或 backfill，默认使用设置里的策略")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.policy = domain.ExclusionPolicy(policy)

	switch {
	case cfg.mode != "serve" && cfg.mode != "spin":
		return cfg, fmt.Errorf("未知模式 %q，请使用 -mode=serve 或 -mode=spin", cfg.mode)
	case !cfg.policy.Valid():
		return cfg, fmt.Errorf("未知排除策略 %q", policy)
	case cfg.count < 1:
		return cfg, errors.New("-count 必须 >= 1")
	case cfg.pool < 1 || cfg.pool > domain.MaxCandidatePoolSize:
		return cfg, fmt.Errorf("-pool 必须在 1 到 %d 之间", domain.MaxCandidatePoolSize)
	case cfg.filters.MinStars < 0:
		return cfg, errors.New("-min-stars 不能为负数")
	case cfg.interval < 0:
		return cfg, errors.New("-interval 不能为负数")
	}

	cfg.dsn = getenv("DATABASE_DSN")
	if cfg.dsn == "" {
		cfg.dsn = defaultDSN
	}
	cfg.githubToken = getenv("GITHUB_TOKEN")
	cfg.webhook = getenv("FEISHU_WEBHOOK")
	cfg.apiURL = getenv("GITHUB_API_URL")

	return cfg, nil
}

func (c config) spinRequest() service.SpinRequest {
	req := service.SpinRequest{
		CandidatePoolSize: c.pool,
		ResultCount:       c.count,
		Policy:            c.policy,
	}
	if !c.filters.IsEmpty() {
		filters := c.filters
		req.Filters = &filters
	}
	return req
}

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("❌ 参数错误: %v", err)
	}

	// 1. 初始化数据库
	repoStore, err := repository.NewPostgresRepo(cfg.dsn)
	if err != nil {
		log.Fatalf("❌ DB 初始化失败: %v", err)
	}

	// 2. 初始化搜索通道和引擎
	searcher, err := github.NewSearcher(cfg.apiURL, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		log.Fatalf("❌ GitHub 客户端初始化失败: %v", err)
	}
	engine := service.NewDiscoveryService(searcher)
	roulette := service.NewRouletteService(engine, repoStore, cfg.githubToken)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 根据模式分流
	switch cfg.mode {
	case "serve":
		handler := httpapi.NewHandler(engine, roulette, repoStore, cfg.githubToken)
		if err := runServer(ctx, httpapi.NewServer(handler, httpapi.DefaultServerConfig()), cfg.addr); err != nil {
			log.Fatalf("❌ HTTP 服务异常退出: %v", err)
		}
	case "spin":
		var notifier port.Notifier
		if cfg.webhook != "" {
			notifier = feishu.NewNotifier(cfg.webhook)
		}
		if cfg.interval > 0 {
			runScheduledSpin(ctx, roulette, notifier, cfg.spinRequest(), cfg.interval)
			return
		}
		if err := runSpin(ctx, roulette, notifier, cfg.spinRequest(), os.Stdout); err != nil {
			log.Fatalf("❌ 抽取失败: %v", err)
		}
	}
}

type server interface {
	Start(address string) error
	Shutdown(ctx context.Context) error
}

// runServer 阻塞直到 ctx 结束，然后优雅关闭
func runServer(ctx context.Context, srv server, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🌐 HTTP 服务已启动: %s\n", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		fmt.Println("\n👋 收到停止信号，正在退出...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// runScheduledSpin 定时抽取，适合配合飞书每天推送几个仓库
func runScheduledSpin(ctx context.Context, roulette httpapi.Spinner, notifier port.Notifier, req service.SpinRequest, interval int) {
	ticker := time.NewTicker(time.Duration(interval) * time.Minute)
	defer ticker.Stop()

	fmt.Printf("⏰ 定时执行模式已启动，每 %d 分钟抽取一次\n", interval)
	fmt.Println("按下 Ctrl+C 可以优雅停止程序")

	// 立即执行一次
	if err := runSpin(ctx, roulette, notifier, req, os.Stdout); err != nil {
		log.Printf("❌ 抽取失败: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := runSpin(ctx, roulette, notifier, req, os.Stdout); err != nil {
				log.Printf("❌ 抽取失败: %v", err)
			}
		case <-ctx.Done():
			fmt.Println("👋 定时任务已停止")
			return
		}
	}
}

// runSpin 抽一次，打印结果，有 notifier 时推送
// 引擎层面的失败只打印，不算错误
func runSpin(ctx context.Context, roulette httpapi.Spinner, notifier port.Notifier, req service.SpinRequest, out io.Writer) error {
	spinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := roulette.Spin(spinCtx, req)
	if err != nil {
		return err
	}

	printResult(out, result)

	if result.Error != "" || len(result.Repos) == 0 || notifier == nil {
		return nil
	}
	if err := notifier.Notify(spinCtx, result.Repos); err != nil {
		log.Printf("⚠️ 推送飞书失败: %v", err)
	}
	return nil
}

func printResult(out io.Writer, result *domain.DiscoveryResult) {
	rl := result.RateLimit
	fmt.Fprintf(out, "📊 配额: %d/%d，重置时间 %s\n", rl.Remaining, rl.Limit, rl.ResetAt.Local().Format("15:04:05"))

	if result.Error != "" {
		fmt.Fprintf(out, "❌ %s\n", result.Error)
		return
	}
	if len(result.Repos) == 0 {
		fmt.Fprintln(out, "📭 没有抽到新仓库，换个条件或者清空浏览历史试试")
		return
	}

	fmt.Fprintln(out, "\n================ [ 🎰 轮盘结果 ] ================")
	for i, repo := range result.Repos {
		language := repo.Language
		if language == "" {
			language = "-"
		}
		fmt.Fprintf(out, "%d. %s  ⭐ %d  [%s]\n", i+1, repo.FullName, repo.StargazersCount, language)
		fmt.Fprintf(out, "   %s\n", repo.HTMLURL)
		if repo.Description != "" {
			fmt.Fprintf(out, "   %s\n", strings.TrimSpace(repo.Description))
		}
	}
	fmt.Fprintln(out, "=================================================")
	if result.Shortfall > 0 {
		fmt.Fprintf(out, "⚠️ 候选不足，比预期少 %d 个\n", result.Shortfall)
	}
}
