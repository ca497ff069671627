package cmd

import (
	"os"
	"os/signal"
	"syscall"

	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/JxTIN21/Codebase/internal/global"
	"github.com/JxTIN21/Codebase/internal/mcp"
	"github.com/JxTIN21/Codebase/internal/web"
	"github.com/JxTIN21/Codebase/library/log"
	"github.com/JxTIN21/Codebase/library/throttle"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

var apiCMD = &cobra.Command{
	Use:    "api",
	Short:  "api",
	Long:   `HTTP and MCP API with background index workers`,
	Args:   gcmd.NoExtraArgs,
	PreRun: preRun,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rt, err := global.SetupService(ctx)
		if err != nil {
			log.Logger.Panic("setup service", zap.Error(err))
		}
		defer rt.Close()

		workers, err := rt.Service.StartIndexWorkers(ctx, 0)
		if err != nil {
			log.Logger.Panic("start index workers", zap.Error(err))
		}
		if workers == 0 {
			log.Logger.Warn("no index workers in this process, uploads stay pending until another process claims them")
		}
		rt.Service.StartRetentionSweeper(ctx)

		mcpServer, err := mcp.NewServer(rt.Service, version, log.Logger.Named("mcp"))
		if err != nil {
			log.Logger.Panic("new mcp server", zap.Error(err))
		}

		searchLimiter, err := newSearchLimiter()
		if err != nil {
			log.Logger.Panic("new search throttle", zap.Error(err))
		}

		opts := web.Options{
			AllowedOrigins: gconfig.S.GetStringSlice("settings.web.allowed_origins"),
			MaxUploadBytes: rt.Service.Settings().Upload.MaxUploadBytes,
			EnableMetrics:  gconfig.S.GetBool("settings.web.metrics"),
			MCPHandler:     mcpServer.Handler(),
			FrontendDir:    gconfig.S.GetString("settings.web.frontend_dir"),
		}
		if searchLimiter != nil {
			opts.SearchLimiter = searchLimiter
		}

		server, err := web.NewServer(rt.Service, opts, log.Logger.Named("web"))
		if err != nil {
			log.Logger.Panic("new web server", zap.Error(err))
		}

		addr := gconfig.S.GetString("listen")
		log.Logger.Info("listening", zap.String("addr", addr))
		if err = server.Run(ctx, addr); err != nil {
			log.Logger.Error("web server exited", zap.Error(err))
		}
	},
}

// newSearchLimiter returns nil when settings.web.throttle.each_per_sec is unset.
func newSearchLimiter() (*throttle.KeyedThrottle, error) {
	eachPerSec := gconfig.S.GetInt("settings.web.throttle.each_per_sec")
	if eachPerSec <= 0 {
		return nil, nil
	}

	cfg := throttle.Config{
		TotalNPerSec:   gconfig.S.GetInt("settings.web.throttle.total_per_sec"),
		TotalBurst:     gconfig.S.GetInt("settings.web.throttle.total_burst"),
		EachKeyNPerSec: eachPerSec,
		EachKeyBurst:   gconfig.S.GetInt("settings.web.throttle.each_burst"),
	}
	if cfg.TotalNPerSec <= 0 {
		cfg.TotalNPerSec = eachPerSec * 10
	}
	if cfg.TotalBurst < cfg.TotalNPerSec {
		cfg.TotalBurst = cfg.TotalNPerSec
	}
	if cfg.EachKeyBurst < cfg.EachKeyNPerSec {
		cfg.EachKeyBurst = cfg.EachKeyNPerSec
	}
	return throttle.New(cfg)
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
