// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"rollingpi/internal/config"
	"rollingpi/internal/domain/model"
	pg "rollingpi/internal/infra/db/postgres"
	"rollingpi/internal/infra/logging"
)

var categories = []struct{ Slug, Name string }{
	{model.DefaultCategorySlug, "Sin categoría"},
	{"tecnologia", "Tecnología"},
	{"deportes", "Deportes"},
	{"cultura", "Cultura"},
}

// Prepares a predictable database for manual end-to-end runs of the
// payment flow: schema, categories, an admin account and a sample article.
func main() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	var (
		reset     bool
		adminPiID string
		adminName string
	)
	fs.BoolVar(&reset, "reset", false, "truncate every table first")
	fs.StringVar(&adminPiID, "admin-pi-id", "", "Pi uid to grant the ADMIN role")
	fs.StringVar(&adminName, "admin-username", "admin", "username for the admin account")

	cfg, err := config.LoadConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	v, err := pg.Migrate(cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Uint("version", v).Msg("[1/4] schema ready")

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if reset {
		if _, err := pool.Exec(ctx, `
			TRUNCATE session_links, payments, article_promotions, articles, users
			RESTART IDENTITY CASCADE;`); err != nil {
			logger.Fatal().Err(err).Msg("truncate")
		}
		logger.Info().Msg("[2/4] tables truncated")
	} else {
		logger.Info().Msg("[2/4] keeping existing rows")
	}

	if err := seedCategories(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("categories")
	}
	logger.Info().Int("count", len(categories)).Msg("[3/4] categories seeded")

	if adminPiID != "" {
		if err := seedAdmin(ctx, pool, logger, adminPiID, adminName); err != nil {
			logger.Fatal().Err(err).Msg("admin")
		}
	}
	logger.Info().Msg("[4/4] done")
}

func seedCategories(ctx context.Context, pool *pgxpool.Pool) error {
	for _, c := range categories {
		if _, err := pool.Exec(ctx,
			`INSERT INTO categories (slug, name) VALUES ($1,$2) ON CONFLICT (slug) DO UPDATE SET name=EXCLUDED.name`,
			c.Slug, c.Name); err != nil {
			return fmt.Errorf("category %s: %w", c.Slug, err)
		}
	}
	return nil
}

// seedAdmin upserts the account through the repository, then promotes it
// and gives it a draft article to exercise renewals against.
func seedAdmin(ctx context.Context, pool *pgxpool.Pool, logger *zerolog.Logger, piID, username string) error {
	u, err := model.NewUser(piID, username)
	if err != nil {
		return err
	}
	if err := pg.NewPostgresUserRepo(pool).Upsert(ctx, nil, u); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `UPDATE users SET role=$1, updated_at=NOW() WHERE id=$2`, model.RoleAdmin, u.ID); err != nil {
		return err
	}

	a := &model.Article{CreatedBy: u.Username, Status: model.ArticleDraft, CategorySlug: model.DefaultCategorySlug}
	if err := pg.NewArticleRepo(pool).Create(ctx, nil, a); err != nil {
		return err
	}
	logger.Info().Int64("user_id", u.ID).Int64("article_id", a.ID).Msg("admin seeded")
	return nil
}
