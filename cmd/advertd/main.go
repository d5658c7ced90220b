// advertd is the grant advert builder and publication workflow service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/grantfinder/adverts/internal/api"
	"github.com/grantfinder/adverts/internal/config"
	"github.com/grantfinder/adverts/internal/db"
	"github.com/grantfinder/adverts/internal/listing"
	"github.com/grantfinder/adverts/internal/middleware"
	"github.com/grantfinder/adverts/internal/richtext"
	"github.com/grantfinder/adverts/internal/schema"
	"github.com/grantfinder/adverts/internal/secrets"
	"github.com/grantfinder/adverts/internal/services"
	"github.com/grantfinder/adverts/pkg/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "advertd",
		Short:        "Grant advert builder and publication workflow service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), activateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, svc, auth, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()

			apiMux := http.NewServeMux()
			api.NewRouter(svc).Register(apiMux)

			// The advert routes stamp the acting editor onto every write, so
			// they require an authenticated session; only health stays open.
			mux := http.NewServeMux()
			mux.Handle("/api/", middleware.RequireAuth(apiMux))
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "name": "grant-adverts API"})
			})

			handler := middleware.NoStore(middleware.SecureHeaders(auth.WithAuth(mux)))
			log.Printf("grant-adverts server listening on %s", cfg.Addr)
			return http.ListenAndServe(cfg.Addr, handler)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			conn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.RunMigrations(conn, cfg.MigrationsDir); err != nil {
				return err
			}
			log.Printf("migrations applied to %s", cfg.SQLitePath)
			return nil
		},
	}
}

// activateCmd flips scheduled adverts whose opening instant has passed to
// published. The core owns no timer; run this from cron or a systemd timer.
func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Publish scheduled adverts whose opening date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, _, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			n, err := svc.ActivateDueAdverts(context.Background())
			if err != nil {
				return err
			}
			log.Printf("activated %d scheduled advert(s)", n)
			return nil
		},
	}
}

func buildService() (*config.Config, *services.AdvertService, *middleware.Auth, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	conn, err := openDB(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		if err := conn.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}
	if err := db.RunMigrations(conn, cfg.MigrationsDir); err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	store, err := db.NewSQLiteStore(conn)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}

	key, err := cfg.EmailCipherKey()
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	cipher, err := secrets.NewEmailCipher(key)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}

	template, err := schema.Load(cfg.TemplatePath)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}

	var index services.ListingIndex
	if len(cfg.ElasticAddresses) > 0 {
		es, err := listing.NewElasticIndex(cfg.ElasticAddresses, cfg.ElasticIndex, logger.New("listing"))
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, err
		}
		index = es
	}

	codec := services.NewCodec(richtext.TransformJSON)
	svc := services.NewAdvertService(store, codec, cipher, index, template)
	return cfg, svc, middleware.NewAuth(cfg.JWTSecret), cleanup, nil
}

func openDB(cfg *config.Config) (*sqlx.DB, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(cfg.SQLitePath))
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return conn, nil
}
