// hlswatch follows an HLS presentation and logs segment index updates
// until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/fetch"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/hls"
	"github.com/RyanBlaney/hls-manifest-engine/output"
)

type watchObserver struct {
	logger logging.Logger
}

func (o *watchObserver) OnError(err error) {
	o.logger.Error(err, "stream degraded")
}

func (o *watchObserver) OnEvent(event common.Event) {
	o.logger.Info("manifest event", logging.Fields{
		"type":   string(event.Type),
		"uri":    event.URI,
		"detail": event.Detail,
	})
}

func (o *watchObserver) OnTimelineRegionAdded(region common.TimelineRegion) {
	o.logger.Info("timeline region", logging.Fields{
		"scheme": region.SchemeID,
		"start":  region.Start,
		"end":    region.End,
	})
}

func main() {
	var (
		updateFloor time.Duration
		timeOffset  float64
		bestEffort  bool
		format      string
		pretty      bool
	)

	root := &cobra.Command{
		Use:   "hlswatch <master-uri>",
		Short: "Follow an HLS manifest and log its segment index updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetGlobalLogger()

			formatter, err := output.NewFormatter(format)
			if err != nil {
				return err
			}

			config := hls.DefaultConfig()
			config.UpdateFloor = updateFloor
			config.DefaultTimeOffset = timeOffset
			config.UnsupportedContainerFatal = !bestEffort
			if err := config.Validate(); err != nil {
				return err
			}

			engine := hls.NewEngine(
				fetch.NewClient(nil),
				&watchObserver{logger: logger},
				config,
			)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			manifest, err := engine.Start(ctx, args[0])
			if err != nil {
				return err
			}
			defer engine.Stop()

			logger.Info("manifest loaded", logging.Fields{
				"uri":      manifest.URI,
				"variants": len(manifest.Periods[0].Variants),
				"class":    manifest.Timeline.Classification().String(),
			})

			printSummary := func() error {
				rendered, err := formatter.Format(output.Summarize(manifest), pretty)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(append(rendered, '\n'))
				return err
			}

			if err := printSummary(); err != nil {
				return err
			}

			ticker := time.NewTicker(updateFloor)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printSummary(); err != nil {
						return err
					}
				}
			}
		},
	}

	root.Flags().DurationVar(&updateFloor, "update-floor", 3*time.Second, "minimum interval between playlist refreshes")
	root.Flags().Float64Var(&timeOffset, "time-offset", 0, "presentation time assigned before any timestamp is known")
	root.Flags().BoolVar(&bestEffort, "best-effort-start-time", false, "keep streams whose start time cannot be resolved from content")
	root.Flags().StringVar(&format, "format", "text", "summary output format: text, json or yaml")
	root.Flags().BoolVar(&pretty, "pretty", false, "pretty-print JSON summaries")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
