package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/internal/observability"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/internal/profile"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/calendar"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/reminder"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/weather"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/bot"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/dingtalk"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/middleware"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/poller"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "dingtalk-channel",
	Short: "DingTalk chat channel with reminders, weather subscriptions and meeting alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	p, err := profile.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(p.IsDev())

	driver, err := store.NewFileDriver(p.Data)
	if err != nil {
		return err
	}
	defer driver.Close()

	client := dingtalk.NewClient(p.AppKey, p.AppSecret, p.RobotCode, logger)
	meteo := weather.NewClient()

	reminders := reminder.NewService(driver, p.Account, logger)
	weatherSvc := weather.NewService(driver, p.Account, meteo, meteo, logger)
	calendarSvc := calendar.NewService(driver, p.Account, client, logger)

	router := bot.New(reminders, weatherSvc, calendarSvc, p.DefaultTimezone, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	inbound := middleware.NewSenderLimiter(1, 5)
	dingtalk.RegisterWebhook(e, p.AppSecret, func(c echo.Context, userID, text string) string {
		if !inbound.Allow(userID) {
			return "消息太频繁了，请稍后再试。"
		}
		return router.Handle(c.Request().Context(), userID, text)
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	loops, err := poller.New(logger)
	if err != nil {
		return err
	}
	register := []struct {
		name     string
		interval time.Duration
		tick     poller.TickFunc
	}{
		{"reminders", time.Duration(p.ReminderIntervalSec) * time.Second,
			func(ctx context.Context) int { return reminders.Tick(ctx, client) }},
		{"subscriptions", time.Duration(p.SubscriptionIntervalSec) * time.Second,
			func(ctx context.Context) int { return weatherSvc.Tick(ctx, client) }},
		{"calendar", time.Duration(p.CalendarIntervalSec) * time.Second,
			func(ctx context.Context) int { return calendarSvc.Tick(ctx, client) }},
	}
	for _, loop := range register {
		if err := loops.Register(ctx, loop.name, loop.interval, loop.tick); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
		logger.Info("webhook server listening", "addr", addr, "mode", p.Mode)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		loops.Start()
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := loops.Shutdown(); err != nil {
			logger.Error("poller shutdown failed", "error", err)
		}
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
