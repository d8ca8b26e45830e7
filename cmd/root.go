package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mrms-extract",
	Short: "Bounded-memory precipitation extraction from MRMS GRIB2 archives",
	Long:  "Streams wgrib2 CSV output and extracts spatial windows from multi-million-point radar grids without ever holding a full grid in memory.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
