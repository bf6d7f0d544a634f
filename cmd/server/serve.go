package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"teamhq/internal/chat"
	"teamhq/internal/config"
	"teamhq/internal/db"
	"teamhq/internal/directory"
	"teamhq/internal/logging"
	"teamhq/internal/member"
	myMiddleware "teamhq/internal/middleware"
	"teamhq/internal/realtime"
)

func init() {
	serveCmd.Flags().String("addr", "", "http service address (default :8080)")
	serveCmd.Flags().String("redis-addr", "", "redis address for cross-instance delivery")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("server")

	// 1. Database
	database, err := db.NewDatabase(ctx, cfg.Database.DSN, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer database.Close()
	logger.Info().Msg("connected to postgres")

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}

	// 2. Redis. Without an address the hub delivers in-process only.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	} else {
		logger.Warn().Msg("no redis configured; realtime delivery stays inside this instance")
	}

	hub := realtime.NewHub(redisClient,
		realtime.WithChannel(cfg.Redis.Channel),
		realtime.WithBuffer(cfg.Chat.SubscriberBuffer))
	go hub.Run(ctx)
	go func() {
		if err := hub.SubscribeToRedis(ctx); err != nil {
			logger.Error().Err(err).Msg("redis subscription ended")
		}
	}()

	// 3. Directory and members
	memberRepo := member.NewRepository(database.Conn)
	channelRepo := directory.NewChannelRepository(database.Conn)
	dir := directory.New(memberRepo, channelRepo)
	if err := dir.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial directory load failed")
	}
	if len(cfg.Auth.AdminEmails) == 0 {
		logger.Warn().Msg("no auth.admin_emails configured; nobody registering can manage channels")
	}

	memberService := member.NewService(memberRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL,
		member.WithAdminEmails(cfg.Auth.AdminEmails...),
		member.OnProfileChange(dir.PutMember))
	memberHandler := member.NewHandler(memberService)

	// 4. Chat

	chatRepo := chat.NewRepository(database.Conn)
	chatHandler := chat.NewHandler(chat.Deps{
		Directory:    dir,
		Messages:     realtime.NewMessages(chatRepo, hub),
		ReadState:    chatRepo,
		Channels:     chat.NewChannelManager(realtime.NewChannels(channelRepo, hub), dir),
		Notifier:     hub,
		DedupeWindow: cfg.Chat.DedupeWindow,
	}, memberService)

	events, err := hub.SubscribeChannels(ctx)
	if err != nil {
		return err
	}
	defer events.Close()
	go applyChannelEvents(events, dir, chatHandler, logger)

	authMiddleware := myMiddleware.NewAuthMiddleware(memberService)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(memberHandler, chatHandler, authMiddleware),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// applyChannelEvents keeps this instance's directory and open sessions in
// step with channel changes made anywhere.
func applyChannelEvents(events *realtime.ChannelSubscription, dir *directory.Directory, h *chat.Handler, logger zerolog.Logger) {
	for ev := range events.Events() {
		switch ev.Kind {
		case realtime.EventChannelCreated:
			dir.PutChannel(*ev.Channel)
		case realtime.EventChannelDeleted:
			dir.RemoveChannel(ev.Channel.ID)
			h.ChannelRemoved(ev.Channel.ID)
		}
		logger.Debug().Str("kind", string(ev.Kind)).Str("channel_id", ev.Channel.ID).Msg("channel event")
	}
}

func newRouter(members *member.Handler, chats *chat.Handler, auth *myMiddleware.AuthMiddleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", members.Register)
	r.Post("/login", members.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chats.ServeWs)

		r.Get("/api/me", members.Me)
		r.Put("/api/me", members.UpdateProfile)
		r.Put("/api/me/status", members.SetStatus)
		r.Get("/api/members", members.ListMembers)
		r.Get("/api/members/search", members.SearchMembers)

		r.Get("/api/channels", chats.ListChannels)
		r.Post("/api/channels", chats.CreateChannel)
		r.Delete("/api/channels/{id}", chats.DeleteChannel)

		r.Get("/api/messages", chats.GetMessages)
		r.Get("/api/unread", chats.GetUnread)
	})
	return r
}
