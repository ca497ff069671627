package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/JxTIN21/Codebase/cmd/tui"
	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/global"
	"github.com/JxTIN21/Codebase/library/log"
)

var searchCMD = &cobra.Command{
	Use:   "search <codebase-id> <query>",
	Short: "ask a question about an indexed codebase",
	Long: `Run one query against a ready codebase and print the explanation,
the ranked files and the code examples.

Example:
  codebase search 3f2c... "where is authentication handled"`,
	Args:   cobra.MinimumNArgs(2),
	PreRun: preRun,
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args[1:], " ")
		if err := runSearch(cmd.Context(), args[0], query); err != nil {
			log.Logger.Error("search", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runSearch(ctx context.Context, codebaseID, query string) error {
	rt, err := global.SetupService(ctx)
	if err != nil {
		return errors.Wrap(err, "setup service")
	}
	defer rt.Close()

	result, err := rt.Service.Search(ctx, codebase.SearchRequest{
		CodebaseID: codebaseID,
		Query:      query,
		Limit:      gconfig.S.GetInt("max-results"),
	})
	if err != nil {
		return err
	}

	md := tui.FormatResult(result)
	if gconfig.S.GetBool("raw") {
		fmt.Print(md)
		return nil
	}
	fmt.Print(tui.RenderMarkdown(md, 0))
	return nil
}

func init() {
	searchCMD.Flags().Int("max-results", 0, "number of chunks to retrieve, 0 uses the configured default")
	searchCMD.Flags().Bool("raw", false, "print markdown without terminal styling")
	rootCMD.AddCommand(searchCMD)
}
