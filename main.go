// Command postboard runs the postboard API: user accounts, authentication
// and posts, with searchable and paginated listings.
//
// Besides serving HTTP it can apply or roll back database migrations and
// bulk-import users from a JSON file.
//
// @title Postboard API
// @version 1.0
// @description Users, accounts and posts with searchable, paginated listings.
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/db"
	"github.com/user/postboard-go/events"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/logging"
	"github.com/user/postboard-go/mailer"
	"github.com/user/postboard-go/users"
)

func main() {
	// Variables set in the environment win over the .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("error loading .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		logrus.WithError(err).Error("postboard exited with an error")
		stop()
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:   "postboard",
		Usage:  "users, accounts and posts API",
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server (default)",
				Action: serveAction,
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "down",
						Usage: "roll back `N` migrations instead of applying them",
					},
				},
				Action: migrateAction,
			},
			{
				Name:      "seed-users",
				Usage:     "create users from a JSON array file",
				ArgsUsage: "<file>",
				Action:    seedUsersAction,
			},
		},
	}
}

// bootstrap loads configuration and builds the logger every command needs.
func bootstrap() (*config.AppConfig, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}
	return cfg, logger, nil
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	return serve(c.Context, cfg, logger)
}

func migrateAction(c *cli.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	mg, err := db.NewMigrator(cfg.DB.DSN(), cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer mg.Close()

	if steps := c.Int("down"); steps > 0 {
		return mg.Down(steps)
	}
	return mg.Up()
}

func seedUsersAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("seed-users needs a file argument", 2)
	}

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open users file: %w", err)
	}
	defer f.Close()

	pool, err := db.NewPool(c.Context, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	service := users.NewService(users.Deps{
		Store:  users.NewPostgresStore(pool),
		List:   listquery.NewPostgresCollection(db.OpenSQLX(pool), users.Table),
		Mail:   &mailer.LogSender{Logger: logger},
		Events: &events.NoopPublisher{},
		Auth:   cfg.Auth,
		Logger: logger,
	})

	summary, err := service.ImportUsers(c.Context, f)
	if err != nil {
		return err
	}
	logger.WithField("file", path).Info(summary)
	return nil
}
