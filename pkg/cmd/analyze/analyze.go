package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/trackside/pkg/cmd/report"
	"github.com/mpapenbr/trackside/pkg/cmd/util"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/service"
)

var (
	trackID      string
	compareArg   string
	outputFormat string
)

var ErrInvalidCompare = errors.New("compare expects two lap ids like 12:14")

func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "analyzes the stored laps of a track",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if trackID == "" && compareArg == "" {
				return errors.New("either --track or --compare is required")
			}
			if compareArg != "" {
				_, _, err := parseCompare(compareArg)
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startAnalyze(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&trackID, "track", "",
		"track id")
	cmd.Flags().StringVar(&compareArg, "compare", "",
		"compare two stored laps by id, e.g. 12:14")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text",
		"output format (text, json)")
	return cmd
}

func parseCompare(arg string) (idA, idB int64, err error) {
	a, b, ok := strings.Cut(arg, ":")
	if !ok {
		return 0, 0, ErrInvalidCompare
	}
	if idA, err = strconv.ParseInt(strings.TrimSpace(a), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidCompare, err)
	}
	if idB, err = strconv.ParseInt(strings.TrimSpace(b), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidCompare, err)
	}
	return idA, idB, nil
}

func startAnalyze(ctx context.Context, out io.Writer) error {
	sqlLogger, err := util.SetupLogger()
	if err != nil {
		return err
	}
	util.WaitForRequiredServices(util.RequiredServices{DB: true})
	pool := util.ConnectDB(sqlLogger)
	defer pool.Close()
	svc := service.InitLapService(pool)

	if compareArg != "" {
		idA, idB, _ := parseCompare(compareArg)
		c, err := service.CompareLaps(ctx, svc, idA, idB, config.EngineConfig.BucketSizeM)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return report.WriteJSON(out, c)
		}
		return report.WriteComparison(out, c)
	}

	r, err := service.AnalyzeTrack(ctx, svc, model.TrackID(trackID))
	if err != nil {
		return fmt.Errorf("analyze track %s: %w", trackID, err)
	}
	if outputFormat == "json" {
		return report.WriteJSON(out, r)
	}
	stored, err := svc.TrackLaps(ctx, model.TrackID(trackID))
	if err != nil {
		return err
	}
	return report.WriteTrackReport(out, r, stored)
}
