package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/JxTIN21/Codebase/library/config"
	"github.com/JxTIN21/Codebase/library/log"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCMD = &cobra.Command{
	Use:   "codebase",
	Short: "codebase",
	Long:  `index source trees and answer questions about them`,
	Args:  gcmd.NoExtraArgs,
}

func initialize(ctx context.Context, cmd *cobra.Command) error {
	if err := gconfig.Shared.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind pflags")
	}

	if err := setupEnv(cmd); err != nil {
		return errors.Wrap(err, "load env")
	}
	setupSettings(ctx)
	setupLogger(ctx)

	if err := validateStartupConfig(); err != nil {
		return errors.Wrap(err, "validate config")
	}

	return nil
}

// setupEnv loads the dotenv file into the process environment.
// A missing file is only an error when --env-file was given explicitly.
func setupEnv(cmd *cobra.Command) error {
	path := gconfig.Shared.GetString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

func setupSettings(ctx context.Context) {
	// mode
	if gconfig.Shared.GetBool("debug") {
		fmt.Println("run in debug mode")
		gconfig.Shared.Set("log-level", "debug")
	} else { // prod mode
		fmt.Println("run in prod mode")
	}

	// load configuration
	cfgPath := gconfig.Shared.GetString("config")
	if cfgPath == "" {
		return
	}
	config.LoadFromFile(cfgPath)
}

func setupLogger(ctx context.Context) {
	lvl := gconfig.Shared.GetString("log-level")
	if err := log.Logger.ChangeLevel(glog.Level(lvl)); err != nil {
		log.Logger.Panic("change log level", zap.Error(err), zap.String("level", lvl))
	}
}

// preRun initializes configuration and logging for a subcommand.
func preRun(cmd *cobra.Command, _ []string) {
	if err := initialize(cmd.Context(), cmd); err != nil {
		log.Logger.Panic("init", zap.Error(err))
	}
}

func init() {
	rootCMD.PersistentFlags().Bool("debug", false, "run in debug mode")
	rootCMD.PersistentFlags().String("listen", "localhost:8080", "like `localhost:8080`")
	rootCMD.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCMD.PersistentFlags().String("env-file", ".env", "dotenv file with API keys")
	rootCMD.PersistentFlags().String("log-level", "info", "`debug/info/error`")
}

// Execute execute root command
func Execute() {
	if err := rootCMD.Execute(); err != nil {
		glog.Shared.Panic("start", zap.Error(err))
	}
}
