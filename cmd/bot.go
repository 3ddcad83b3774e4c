package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/qgin/qgin"
	"github.com/gcottom/semaphore"
	"github.com/gin-contrib/cors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gruzd1sok/YTSage-telegram-bot/config"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/access"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/cookies"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/handlers"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/httpapi"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/selection"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/services/session"
	"github.com/gruzd1sok/YTSage-telegram-bot/internal/telegram"
	"github.com/gruzd1sok/YTSage-telegram-bot/pkg/ytdlp"
	"go.uber.org/zap"
)

func init() {
	c := color.New(color.FgCyan)
	c.Print(`
:::   ::: ::::::::::: ::::::::      :::      ::::::::  ::::::::::
:+:   :+:     :+:    :+:    :+:   :+: :+:   :+:    :+: :+:
 +:+ +:+      +:+    +:+         +:+   +:+  +:+        +:+
  +#++:       +#+    +#++:++#++ +#++:++#++: :#:        +#++:++#
   +#+        +#+           +#+ +#+     +#+ +#+   +#+# +#+
   #+#        #+#    #+#    #+# #+#     #+# #+#    #+# #+#
   ###        ###     ########  ###     ###  ########  ##########
|------------------------------------------------------------------|
|                 YTSage Telegram Download Bot v1.0                |
|------------------------------------------------------------------|
   `)
}

func main() {
	if err := RunBot(); err != nil {
		panic(err)
	}
}

func RunBot() error {
	ctx := zaplog.CreateAndInject(context.Background())
	zaplog.InfoC(ctx, "starting download bot...")

	cfg, err := config.Load()
	if err != nil {
		zaplog.ErrorC(ctx, "failed to load config", zap.Error(err))
		return err
	}

	zaplog.InfoC(ctx, "connecting to telegram...")
	sink, err := telegram.NewBotSink(cfg.BotToken, &http.Client{Timeout: cfg.MediaWriteTimeout})
	if err != nil {
		zaplog.ErrorC(ctx, "failed to connect to telegram", zap.Error(err))
		return err
	}

	zaplog.InfoC(ctx, "provisioning download engine...")
	engine := ytdlp.NewClient(cfg.DownloadDir + "/bin")
	if err = engine.EnsureBinary(ctx); err != nil {
		zaplog.WarnC(ctx, "engine not available yet, will retry per download", zap.Error(err))
	}
	if _, err = engine.EnsureJSRuntime(ctx, cfg.JSRuntime, cfg.AutoSetupDeno); err != nil {
		zaplog.WarnC(ctx, "js runtime not available, some videos may fail", zap.Error(err))
	}

	gate := access.NewGate(cfg.BetaEnabled, cfg.AdminChatID, cfg.AllowedChatIDs, cfg.WhitelistFile, cfg.AttemptsFile)

	var refresher session.Refresher
	if cfg.CookieFile != "" || cfg.BrowserCookies != "" {
		refresher = cookies.NewController(cfg.CookieFile, cfg.CookieAutoRefresh, cfg.CookieMaxAge(), cfg.CookieRefreshCommand, cfg.BrowserCookies)
	}

	zaplog.InfoC(ctx, "creating session service...")
	sessionService := &session.Service{
		Config:          cfg,
		Sink:            sink,
		Engine:          engine,
		Selections:      selection.NewStore(),
		Cookies:         refresher,
		DownloadLimiter: semaphore.NewSemaphore(cfg.MaxConcurrentDownloads),
		StatusMap:       new(sync.Map),
	}

	dispatcher := &handlers.Dispatcher{
		Config:  cfg,
		Sink:    sink,
		Gate:    gate,
		Session: sessionService,
	}

	zaplog.InfoC(ctx, "creating gin engine...")
	ginws := qgin.NewGinEngine(&ctx, &qgin.Config{
		UseContextMW:       true,
		UseLoggingMW:       true,
		UseRequestIDMW:     false,
		InjectRequestIDCTX: false,
		LogRequestID:       false,
		ProdMode:           true,
	})
	ginws.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	httpapi.SetupRoutes(ginws, sessionService)

	go func() {
		zaplog.InfoC(ctx, "status api listening", zap.String("addr", cfg.StatusAPIAddr))
		if serveErr := http.ListenAndServe(cfg.StatusAPIAddr, ginws); serveErr != nil {
			zaplog.ErrorC(ctx, "status api stopped", zap.Error(serveErr))
		}
	}()

	zaplog.InfoC(ctx, "setup complete, polling for updates...")
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := sink.API().GetUpdatesChan(updateConfig)
	for update := range updates {
		go dispatcher.HandleUpdate(ctx, update)
	}
	return nil
}
