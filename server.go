package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"

	_ "github.com/user/postboard-go/docs" // registers the Swagger document
	"github.com/user/postboard-go/account"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/background"
	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/db"
	"github.com/user/postboard-go/events"
	"github.com/user/postboard-go/httpx"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/logging"
	"github.com/user/postboard-go/mailer"
	"github.com/user/postboard-go/posts"
	"github.com/user/postboard-go/uploads"
	"github.com/user/postboard-go/users"
)

const shutdownTimeout = 30 * time.Second

// serve wires every component, runs the HTTP server and the background
// sweeper, and shuts both down when ctx is cancelled.
func serve(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnableExtensions(ctx, pool); err != nil {
		return err
	}
	if err := db.RunMigrations(cfg.DB.DSN(), cfg.MigrationsPath, logger); err != nil {
		return err
	}
	sqlxDB := db.OpenSQLX(pool)

	storage, err := uploads.NewStorage(ctx, cfg.Upload)
	if err != nil {
		return err
	}
	uploader := uploads.NewUploader(storage, logger.WithField("component", "uploads"))

	mail := mailer.NewAsyncSender(mailer.NewSender(cfg.Email, logger), logger.WithField("component", "mailer"))
	defer mail.Wait()

	broker, err := newPublisher(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	stream := events.NewBroadcaster(logger.WithField("component", "sse"),
		events.TopicPostCreated, events.TopicPostUpdated, events.TopicPostDeleted)
	publisher := events.Fanout{broker, stream}
	defer publisher.Close()

	tokens := auth.NewTokens(cfg.Auth)

	userStore := users.NewPostgresStore(pool)
	userService := users.NewService(users.Deps{
		Store:  userStore,
		List:   listquery.NewPostgresCollection(sqlxDB, users.Table),
		Files:  uploader,
		Mail:   mail,
		Events: publisher,
		Auth:   cfg.Auth,
		Logger: logger.WithField("component", "users"),
	})
	if err := userService.SeedSuperAdmin(ctx, cfg.SuperAdmin.Email, cfg.SuperAdmin.Password); err != nil {
		return err
	}

	resetTokens := account.NewPostgresResetTokens(pool)
	accountService := account.NewService(userStore, resetTokens, userService, tokens, cfg.Auth,
		logger.WithField("component", "account"))

	postService := posts.NewService(
		posts.NewPostgresStore(pool),
		listquery.NewPostgresCollection(sqlxDB, posts.Table),
		uploader,
		publisher,
		logger.WithField("component", "posts"),
	)

	router := newRouter(cfg, logger, storage, routes{
		users:   users.NewHandlers(userService, uploader).Routes(tokens),
		account: account.NewHandlers(accountService).Routes(tokens),
		posts:   posts.NewHandlers(postService, uploader).Routes(tokens),
		events:  stream,
	})

	sweeper := background.NewSweeper(userStore, resetTokens, logger.WithField("component", "sweeper"))
	if err := sweeper.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// Shutdown waits for open connections, so event streams are ended first.
	srv.RegisterOnShutdown(func() { stream.Close() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Server.Env}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := sweeper.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

func newPublisher(url string, logger logrus.FieldLogger) (events.Publisher, error) {
	if url == "" {
		logger.Info("NATS_URL not set; domain events are disabled")
		return &events.NoopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		return nil, err
	}
	logger.WithField("url", url).Info("publishing domain events to NATS")
	return pub, nil
}

type routes struct {
	users   http.Handler
	account http.Handler
	posts   http.Handler
	events  http.Handler
}

func newRouter(cfg *config.AppConfig, logger logrus.FieldLogger, storage uploads.Storage, rt routes) chi.Router {
	r := chi.NewRouter()

	// Chi requires all middleware to be registered before any routes.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(httpx.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if local, ok := storage.(*uploads.LocalStorage); ok {
		files := http.StripPrefix(local.URLPrefix, http.FileServer(http.Dir(local.Dir)))
		r.Get(local.URLPrefix+"/*", files.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/users", rt.users)
		r.Mount("/auth", rt.account)
		r.Mount("/posts", rt.posts)
		if rt.events != nil {
			r.Get("/events", rt.events.ServeHTTP)
		}
	})

	r.NotFound(httpx.NotFound)
	return r
}
