package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/global"
	"github.com/JxTIN21/Codebase/library/log"
)

const indexPollInterval = 500 * time.Millisecond

var indexCMD = &cobra.Command{
	Use:   "index <dir>",
	Short: "index a local directory",
	Long: `Collect the supported source files under <dir>, upload them as a new
codebase (or into --codebase) and wait until indexing settles.

.gitignore rules, hidden entries and dependency folders are skipped.`,
	Args:   cobra.ExactArgs(1),
	PreRun: preRun,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runIndex(ctx, args[0]); err != nil {
			log.Logger.Error("index", zap.Error(err))
			os.Exit(1)
		}
	},
}

func runIndex(ctx context.Context, dir string) error {
	rt, err := global.SetupService(ctx)
	if err != nil {
		return errors.Wrap(err, "setup service")
	}
	defer rt.Close()
	svc := rt.Service

	settings := svc.Settings()
	files, err := codebase.CollectDirectory(dir, settings.Upload.Extensions, settings.Upload.MaxFileBytes)
	if err != nil {
		return errors.Wrapf(err, "collect %s", dir)
	}
	if len(files) == 0 {
		return errors.Errorf("no supported files under %s", dir)
	}

	var upload *codebase.UploadResult
	if codebaseID := gconfig.S.GetString("codebase"); codebaseID != "" {
		upload, err = svc.AddFiles(ctx, codebaseID, files)
	} else {
		name := gconfig.S.GetString("name")
		if name == "" {
			name = filepath.Base(filepath.Clean(dir))
		}
		upload, err = svc.Upload(ctx, name, files)
	}
	if err != nil {
		return errors.Wrap(err, "upload")
	}

	fmt.Printf("codebase %s: %s\n", upload.CodebaseID, upload.Message)
	for _, skipped := range upload.SkippedFiles {
		fmt.Printf("  skipped %s (%s)\n", skipped.Path, skipped.Reason)
	}

	// waitForIndex only ends once a worker drains the jobs
	if _, err = svc.StartIndexWorkers(ctx, 1); err != nil {
		return errors.Wrap(err, "start index workers")
	}

	status, err := waitForIndex(ctx, svc, upload.CodebaseID)
	if err != nil {
		return err
	}
	if status.Status == codebase.StatusFailed {
		return errors.Errorf("indexing failed: %s", status.Error)
	}

	fmt.Printf("ready: %d files, %d chunks, %d failed\n",
		status.IndexedFiles, status.ChunkCount, status.FailedFiles)
	return nil
}

// waitForIndex polls the status until it is terminal, printing progress changes.
func waitForIndex(ctx context.Context, svc *codebase.Service, codebaseID string) (*codebase.StatusResult, error) {
	var lastMessage string
	for {
		status, err := svc.GetStatus(ctx, codebaseID)
		if err != nil {
			return nil, errors.Wrap(err, "get status")
		}
		if status.Message != lastMessage {
			fmt.Println(status.Message)
			lastMessage = status.Message
		}
		if status.Status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(indexPollInterval):
		}
	}
}

func init() {
	indexCMD.Flags().String("name", "", "codebase name, defaults to the directory name")
	indexCMD.Flags().String("codebase", "", "add the files to an existing codebase id")
	rootCMD.AddCommand(indexCMD)
}
