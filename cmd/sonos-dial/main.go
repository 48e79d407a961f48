package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strefethen/sonos-dial-go/internal/auth"
	"github.com/strefethen/sonos-dial-go/internal/commandlog"
	"github.com/strefethen/sonos-dial-go/internal/config"
	"github.com/strefethen/sonos-dial-go/internal/db"
	"github.com/strefethen/sonos-dial-go/internal/dial"
	"github.com/strefethen/sonos-dial-go/internal/discovery"
	"github.com/strefethen/sonos-dial-go/internal/logging"
	"github.com/strefethen/sonos-dial-go/internal/metrics"
	"github.com/strefethen/sonos-dial-go/internal/server"
	"github.com/strefethen/sonos-dial-go/internal/sonos"
	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/streamdeck"
)

type flags struct {
	port          int
	pluginUUID    string
	registerEvent string
	info          string
	issueToken    string
}

func parseFlags() flags {
	var f flags
	flag.IntVar(&f.port, "port", 0, "host application WebSocket port")
	flag.StringVar(&f.pluginUUID, "pluginUUID", "", "plugin registration UUID")
	flag.StringVar(&f.registerEvent, "registerEvent", "", "registration event name")
	flag.StringVar(&f.info, "info", "", "host application info JSON")
	flag.StringVar(&f.issueToken, "issue-token", "", "print a status API token for this subject and exit")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if f.issueToken != "" {
		token, err := auth.IssueToken(cfg.StatusAPISecret, f.issueToken, auth.DefaultTokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logCloser, err := logging.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, f); err != nil {
		log.Error().Err(err).Msg("sonos-dial stopped")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, f flags) error {
	if f.port == 0 || f.pluginUUID == "" || f.registerEvent == "" {
		return errors.New("-port, -pluginUUID and -registerEvent are required")
	}

	info, err := streamdeck.ParseInfo(f.info)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable -info")
	}
	log.Info().
		Str("host_version", info.Application.Version).
		Str("plugin_version", info.Plugin.Version).
		Int("devices", len(info.Devices)).
		Msg("Starting sonos-dial")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("path", cfg.SQLiteDBPath).Msg("Using database")
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer dbPair.Close()

	commandLog := commandlog.NewService(dbPair, cfg.CommandLogRetention(), cfg.CommandLogPruneSchedule, logging.Component("commandlog"))
	commandLog.StartWriter()
	defer commandLog.StopWriter()
	if err := commandLog.StartPruneJob(); err != nil {
		return err
	}
	defer commandLog.StopPruneJob()

	stats, err := metrics.New(cfg.DDAgentAddr, cfg.DDNamespace, logging.Component("metrics"))
	if err != nil {
		return err
	}
	defer stats.Close()

	soapClient := soap.NewClient(cfg.SonosTimeout(), commandLog, stats)
	newSession := func(host string, mode sonos.Mode) dial.DeviceSession {
		session := sonos.NewSession(soapClient, cfg.ZoneCacheTTL())
		session.Connect(host, cfg.SonosPort, mode)
		return session
	}

	conn, err := streamdeck.Dial(ctx, f.port, logging.Component("streamdeck"))
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.Register(f.registerEvent, f.pluginUUID); err != nil {
		return fmt.Errorf("register plugin: %w", err)
	}

	controller := dial.NewController(conn, newSession, dial.Options{
		PollInterval:    cfg.PollInterval(),
		DebounceWindow:  cfg.DebounceWindow(),
		Logger:          logging.Component("dial"),
		OnInstanceCount: stats.InstanceCount,
	})
	defer controller.Shutdown()

	if cfg.StatusAPIEnabled {
		srv := server.NewServer(cfg.StatusAPIAddr(), server.NewHandler(server.Options{
			Instances:  controller,
			Groups:     server.NewSessionGroupProvider(soapClient, cfg.SonosPort),
			Discovery:  discovery.NewScanner(cfg.MDNSTimeout(), logging.Component("discovery")),
			CommandLog: commandLog,
			Secret:     cfg.StatusAPISecret,
			Logger:     logging.Component("server"),
		}))
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status API stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Status API shutdown error")
			}
		}()
	}

	log.Info().Msg("Registered with host")
	err = conn.Run(ctx, controller)
	log.Info().Msg("Shutting down")
	return err
}
