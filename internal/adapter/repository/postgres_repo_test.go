package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github-roulette/internal/common"
	"github-roulette/internal/domain"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupMockDB 创建一个模拟的数据库连接
func setupMockDB(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	// 禁用日志以减少输出
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	return &PostgresRepo{db: gormDB}, mock, func() { db.Close() }
}

func TestPostgresRepo_ListSaved(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "full_name", "html_url", "description", "saved_at"}).
		AddRow(2, "charmbracelet/bubbletea", "https://github.com/charmbracelet/bubbletea", "A TUI framework", now).
		AddRow(1, "spf13/cobra", "https://github.com/spf13/cobra", "CLI framework", now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "saved_repos" ORDER BY saved_at desc`)).
		WillReturnRows(rows)

	saved, err := repo.ListSaved(context.Background())

	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, int64(2), saved[0].ID)
	assert.Equal(t, "charmbracelet/bubbletea", saved[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListSaved_Error(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "saved_repos"`)).
		WillReturnError(errors.New("connection reset"))

	saved, err := repo.ListSaved(context.Background())

	assert.Nil(t, saved)
	assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveRepo(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "成功收藏",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "saved_repos"`) + ".*" + regexp.QuoteMeta(`ON CONFLICT DO NOTHING`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "重复收藏不报错",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "saved_repos"`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
		},
		{
			name: "数据库错误",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "saved_repos"`)).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMockDB(t)
			defer cleanup()
			tt.setupMock(mock)

			saved := &domain.SavedRepo{ID: 42, FullName: "junegunn/fzf", HTMLURL: "https://github.com/junegunn/fzf"}
			err := repo.SaveRepo(context.Background(), saved)

			if tt.expectError {
				assert.Error(t, err)
				assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))
			} else {
				assert.NoError(t, err)
				assert.False(t, saved.SavedAt.IsZero())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_RemoveSaved(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		expectedCode string
	}{
		{name: "删除成功", rowsAffected: 1, expectedCode: ""},
		{name: "收藏不存在", rowsAffected: 0, expectedCode: common.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMockDB(t)
			defer cleanup()

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "saved_repos"`)).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			mock.ExpectCommit()

			err := repo.RemoveSaved(context.Background(), 42)

			assert.Equal(t, tt.expectedCode, common.CodeOf(err))
			if tt.expectedCode == "" {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_AddSeen(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "seen_repos"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	err := repo.AddSeen(context.Background(), time.Now(), 100, 200)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AddSeen_Empty(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	assert.NoError(t, repo.AddSeen(context.Background(), time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListSeen(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "seen_repos" ORDER BY seen_at desc`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "repo_id", "seen_at"}).
			AddRow(2, 200, now).
			AddRow(1, 100, now.Add(-time.Minute)))

	seen, err := repo.ListSeen(context.Background())

	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, int64(200), seen[0].RepoID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SeenIDs(t *testing.T) {
	tests := []struct {
		name     string
		window   int
		rows     []int64
		expected []int64
	}{
		{name: "取最近窗口并去重", window: 3, rows: []int64{3, 2, 3}, expected: []int64{3, 2}},
		{name: "窗口为 0 取全部", window: 0, rows: []int64{5, 4, 3, 2, 1}, expected: []int64{5, 4, 3, 2, 1}},
		{name: "没有历史", window: 10, rows: nil, expected: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMockDB(t)
			defer cleanup()

			rows := sqlmock.NewRows([]string{"repo_id"})
			for _, id := range tt.rows {
				rows.AddRow(id)
			}
			mock.ExpectQuery(`SELECT .*repo_id.* FROM "seen_repos" ORDER BY seen_at desc, id desc`).
				WillReturnRows(rows)

			ids, err := repo.SeenIDs(context.Background(), tt.window)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_ClearSeen(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "seen_repos" WHERE 1 = 1`)).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	assert.NoError(t, repo.ClearSeen(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetGenres(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "topics", "position"}).
		AddRow("rust", "Rust Stuff", `["rust","cargo"]`, 0).
		AddRow("cli", "CLI Tools", `["cli","terminal"]`, 1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "genres" ORDER BY position asc`)).
		WillReturnRows(rows)

	genres, err := repo.GetGenres(context.Background())

	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "rust", genres[0].ID)
	assert.Equal(t, []string{"rust", "cargo"}, genres[0].Topics)
	assert.Equal(t, "cli", genres[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetGenres_Empty(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 保存过空目录后读出来仍然是空的，不会补回预置题材
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "genres"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "topics", "position"}))

	genres, err := repo.GetGenres(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, genres)
	assert.Empty(t, genres)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SeedGenres(t *testing.T) {
	t.Run("写入预置题材", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectCommit()

		assert.NoError(t, repo.seedGenres(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("写入失败", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
			WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err := repo.seedGenres(context.Background())

		assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_SaveGenres(t *testing.T) {
	tests := []struct {
		name        string
		genres      []domain.Genre
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name:   "替换整个目录",
			genres: []domain.Genre{{ID: "db", Name: "Databases", Topics: []string{"database", "sql"}}},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres" WHERE 1 = 1`)).
					WillReturnResult(sqlmock.NewResult(0, 4))
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:   "清空目录",
			genres: []domain.Genre{},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres"`)).
					WillReturnResult(sqlmock.NewResult(0, 4))
				mock.ExpectCommit()
			},
		},
		{
			name:   "写入失败回滚",
			genres: []domain.Genre{{ID: "db", Name: "Databases", Topics: []string{"database"}}},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres"`)).
					WillReturnResult(sqlmock.NewResult(0, 4))
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
					WillReturnError(errors.New("constraint violation"))
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMockDB(t)
			defer cleanup()
			tt.setupMock(mock)

			err := repo.SaveGenres(context.Background(), tt.genres)

			if tt.expectError {
				assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_GetSettings(t *testing.T) {
	t.Run("读取已保存的设置", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		rows := sqlmock.NewRows([]string{"id", "seen_window_size", "git_hub_token", "exclusion_policy"}).
			AddRow(1, 25, "ghp_saved", "backfill")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "settings"`)).WillReturnRows(rows)

		settings, err := repo.GetSettings(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 25, settings.SeenWindowSize)
		assert.Equal(t, "ghp_saved", settings.GitHubToken)
		assert.Equal(t, domain.PolicyBackfill, settings.ExclusionPolicy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("空策略补为 strict", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		rows := sqlmock.NewRows([]string{"id", "seen_window_size", "git_hub_token", "exclusion_policy"}).
			AddRow(1, 10, "", "")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "settings"`)).WillReturnRows(rows)

		settings, err := repo.GetSettings(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.PolicyStrict, settings.ExclusionPolicy)
	})

	t.Run("未保存时返回默认值", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "settings"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "seen_window_size", "git_hub_token", "exclusion_policy"}))

		settings, err := repo.GetSettings(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.DefaultSettings(), settings)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("数据库错误", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "settings"`)).
			WillReturnError(context.Canceled)

		settings, err := repo.GetSettings(context.Background())

		assert.Nil(t, settings)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPostgresRepo_SaveSettings(t *testing.T) {
	repo, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "settings"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	settings := &domain.Settings{SeenWindowSize: 50}
	err := repo.SaveSettings(context.Background(), settings)

	assert.NoError(t, err)
	assert.Equal(t, uint(1), settings.ID)
	assert.Equal(t, domain.PolicyStrict, settings.ExclusionPolicy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ImportBundle(t *testing.T) {
	newBundle := func() *domain.Bundle {
		return &domain.Bundle{
			Saved:    []domain.SavedRepo{{ID: 1, FullName: "a/b"}, {ID: 2, FullName: "c/d"}},
			Genres:   []domain.Genre{{ID: "db", Name: "Databases", Topics: []string{"database"}}},
			Settings: &domain.Settings{SeenWindowSize: 20},
		}
	}

	t.Run("同一个事务写入三部分", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "saved_repos"`) + ".*" + regexp.QuoteMeta(`ON CONFLICT DO NOTHING`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres" WHERE 1 = 1`)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "settings"`)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		b := newBundle()
		err := repo.ImportBundle(context.Background(), b)

		require.NoError(t, err)
		assert.False(t, b.Saved[0].SavedAt.IsZero())
		assert.Equal(t, uint(1), b.Settings.ID)
		assert.Equal(t, domain.PolicyStrict, b.Settings.ExclusionPolicy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("空收藏和空目录", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres"`)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "settings"`)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.ImportBundle(context.Background(), &domain.Bundle{
			Saved:    []domain.SavedRepo{},
			Genres:   []domain.Genre{},
			Settings: &domain.Settings{},
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("题材写入失败时收藏一起回滚", func(t *testing.T) {
		repo, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "saved_repos"`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "genres"`)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "genres"`)).
			WillReturnError(errors.New("constraint violation"))
		mock.ExpectRollback()

		err := repo.ImportBundle(context.Background(), newBundle())

		assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewPostgresRepo_ConnectionError(t *testing.T) {
	repo, err := NewPostgresRepo("invalid-connection-string", common.WithMaxRetries(0))

	assert.Error(t, err)
	assert.Nil(t, repo)
	assert.Contains(t, err.Error(), "连接数据库失败")
}
