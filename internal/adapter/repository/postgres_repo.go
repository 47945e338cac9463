package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github-roulette/internal/port"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 设置表只有一行
const settingsRowID = 1

var _ port.Store = (*PostgresRepo)(nil)

// PostgresRepo 实现了 port.Store 接口
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
// 连接失败按 retryOpts 重试 (默认 3 次指数退避)
func NewPostgresRepo(dsn string, retryOpts ...common.Option) (*PostgresRepo, error) {
	var db *gorm.DB
	err := common.Do(context.Background(), func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if openErr != nil {
			log.Printf("[Store] ⚠️ 连接数据库失败，准备重试: %v", openErr)
		}
		return openErr
	}, retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	repo := &PostgresRepo{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// migrate 自动迁移表结构；题材表第一次创建时写入预置题材
func (r *PostgresRepo) migrate(ctx context.Context) error {
	freshGenres := !r.db.Migrator().HasTable(&domain.Genre{})

	if err := r.db.AutoMigrate(&domain.SavedRepo{}, &domain.SeenRepo{}, &domain.Genre{}, &domain.Settings{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	if freshGenres {
		return r.seedGenres(ctx)
	}
	return nil
}

// seedGenres 写入四个预置题材，只在建表时调用一次
func (r *PostgresRepo) seedGenres(ctx context.Context) error {
	defaults := domain.DefaultGenres()
	if err := r.db.WithContext(ctx).Create(&defaults).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "写入默认题材失败", err)
	}
	log.Printf("[Store] 已写入 %d 个默认题材", len(defaults))
	return nil
}

// --- 收藏 ---

// ListSaved 按收藏时间倒序返回
func (r *PostgresRepo) ListSaved(ctx context.Context) ([]domain.SavedRepo, error) {
	saved := []domain.SavedRepo{}
	if err := r.db.WithContext(ctx).Order("saved_at desc").Find(&saved).Error; err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取收藏失败", err)
	}
	return saved, nil
}

// SaveRepo 收藏仓库，已收藏时保持原记录不变
func (r *PostgresRepo) SaveRepo(ctx context.Context, repo *domain.SavedRepo) error {
	if repo.SavedAt.IsZero() {
		repo.SavedAt = time.Now()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(repo).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存收藏失败", err)
	}
	return nil
}

// RemoveSaved 取消收藏
func (r *PostgresRepo) RemoveSaved(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&domain.SavedRepo{}, id)
	if result.Error != nil {
		return common.WrapError(common.ErrCodeDatabase, "删除收藏失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("收藏 %d 不存在", id))
	}
	return nil
}

// --- 浏览历史 ---

// AddSeen 记录一批已展示的仓库
func (r *PostgresRepo) AddSeen(ctx context.Context, at time.Time, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	records := make([]domain.SeenRepo, 0, len(ids))
	for _, id := range ids {
		records = append(records, domain.SeenRepo{RepoID: id, SeenAt: at})
	}
	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "记录浏览历史失败", err)
	}
	return nil
}

// ListSeen 按时间倒序返回全部历史
func (r *PostgresRepo) ListSeen(ctx context.Context) ([]domain.SeenRepo, error) {
	seen := []domain.SeenRepo{}
	if err := r.db.WithContext(ctx).Order("seen_at desc").Find(&seen).Error; err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取浏览历史失败", err)
	}
	return seen, nil
}

// SeenIDs 最近 window 条历史里的仓库 ID (去重)，window 为 0 时返回全部
func (r *PostgresRepo) SeenIDs(ctx context.Context, window int) ([]int64, error) {
	var raw []int64
	q := r.db.WithContext(ctx).Model(&domain.SeenRepo{}).Order("seen_at desc, id desc")
	if window > 0 {
		q = q.Limit(window)
	}
	if err := q.Pluck("repo_id", &raw).Error; err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取浏览历史失败", err)
	}

	ids := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, id := range raw {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClearSeen 清空浏览历史
func (r *PostgresRepo) ClearSeen(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&domain.SeenRepo{}).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "清空浏览历史失败", err)
	}
	return nil
}

// --- 题材 ---

// GetGenres 按保存时的顺序返回题材目录，保存过空目录时返回空列表
func (r *PostgresRepo) GetGenres(ctx context.Context) ([]domain.Genre, error) {
	genres := []domain.Genre{}
	if err := r.db.WithContext(ctx).Order("position asc").Find(&genres).Error; err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取题材失败", err)
	}
	return genres, nil
}

// SaveGenres 整体替换题材目录，保留传入顺序
func (r *PostgresRepo) SaveGenres(ctx context.Context, genres []domain.Genre) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceGenres(tx, genres)
	})
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存题材失败", err)
	}
	return nil
}

func replaceGenres(tx *gorm.DB, genres []domain.Genre) error {
	if err := tx.Where("1 = 1").Delete(&domain.Genre{}).Error; err != nil {
		return err
	}
	if len(genres) == 0 {
		return nil
	}
	rows := make([]domain.Genre, len(genres))
	for i, g := range genres {
		g.Position = i
		rows[i] = g
	}
	return tx.Create(&rows).Error
}

// --- 设置 ---

// GetSettings 读取设置，未保存过时返回默认值
func (r *PostgresRepo) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := r.db.WithContext(ctx).First(&settings, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取设置失败", err)
	}
	settings.ExclusionPolicy = settings.ExclusionPolicy.OrDefault()
	return &settings, nil
}

// SaveSettings 保存设置 (Upsert)
func (r *PostgresRepo) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	if err := saveSettings(r.db.WithContext(ctx), settings); err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存设置失败", err)
	}
	return nil
}

func saveSettings(tx *gorm.DB, settings *domain.Settings) error {
	settings.ID = settingsRowID
	settings.ExclusionPolicy = settings.ExclusionPolicy.OrDefault()
	return tx.Save(settings).Error
}

// --- 导入 ---

// ImportBundle 在一个事务里写入收藏、替换题材目录并保存设置，任何一步失败整体回滚
func (r *PostgresRepo) ImportBundle(ctx context.Context, b *domain.Bundle) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(b.Saved) > 0 {
			for i := range b.Saved {
				if b.Saved[i].SavedAt.IsZero() {
					b.Saved[i].SavedAt = now
				}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&b.Saved).Error; err != nil {
				return err
			}
		}
		if err := replaceGenres(tx, b.Genres); err != nil {
			return err
		}
		return saveSettings(tx, b.Settings)
	})
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "导入数据失败", err)
	}
	return nil
}
