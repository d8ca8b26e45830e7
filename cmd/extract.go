package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/geojson"
	"github.com/sells-group/mrms-extract/internal/model"
)

var (
	extractSource string
	extractBBox   string
	extractMin    float64
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a spatial window from one GRIB2 archive",
	Long:  "Acquires the archive (URL or local path), runs the strategy chain, and writes the matching points to stdout as GeoJSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := parseBBox(extractBBox)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sourceID, err := env.Acquire(cmd.Context(), extractSource)
		if err != nil {
			return err
		}

		out, err := env.Engine.Extract(cmd.Context(), requestFor(sourceID, win, extractMin))
		if err != nil {
			return err
		}

		zap.L().Info("extraction finished",
			zap.String("source", sourceID),
			zap.String("summary", summarizeOutcome(out)),
		)

		if out.Status == model.StatusFailed {
			return eris.Errorf("extraction failed: %s", out.Reason)
		}

		data, err := geojson.Marshal(out.Points)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSource, "source", "", "GRIB2 archive URL or local path (required)")
	extractCmd.Flags().StringVar(&extractBBox, "bbox", "", "window as W,S,E,N in degrees (required)")
	extractCmd.Flags().Float64Var(&extractMin, "min", 0, "minimum value threshold in the stream's native unit")
	_ = extractCmd.MarkFlagRequired("source")
	_ = extractCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(extractCmd)
}
