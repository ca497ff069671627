package cmd

import (
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/global"
	"github.com/JxTIN21/Codebase/library/log"
)

var migrateCMD = &cobra.Command{
	Use:    "migrate",
	Short:  "migrate",
	Long:   `migrate db`,
	Args:   gcmd.NoExtraArgs,
	PreRun: preRun,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db, err := global.OpenDB(ctx)
		if err != nil {
			log.Logger.Panic("open db", zap.Error(err))
		}

		if err = codebase.RunMigrations(ctx, db, log.Logger.Named("migrate")); err != nil {
			log.Logger.Panic("migrate", zap.Error(err))
		}
		log.Logger.Info("migrated")
	},
}

func init() {
	rootCMD.AddCommand(migrateCMD)
}
