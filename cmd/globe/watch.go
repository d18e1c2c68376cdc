package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c3i/globe/internal/globe"
	"github.com/c3i/globe/pkg/core"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the shared collection as it changes",
	Long: `Subscribe to the hub and print every snapshot as it arrives.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openStore(clientStoreConfig())
		if err != nil {
			return err
		}
		defer s.Close()

		var view *globe.View
		view = globe.New(s, globe.Config{
			Radius: viper.GetFloat64("globe.radius"),
			User:   user,
			Logger: logger,
			OnRender: func(wps []core.Waypoint) {
				now := time.Now()
				fmt.Printf("%s %s\n",
					color.New(color.Bold).Sprintf("[%s]", now.Format("15:04:05")),
					faint.Sprintf("%d waypoints, %d markers", len(wps), view.Markers().Len()))
				printWaypoints(os.Stdout, wps, now)
			},
		})
		view.Open()
		defer view.Close()

		<-ctx.Done()
		if msg := view.Status().Current(); msg != "" {
			fmt.Fprintln(os.Stderr, faint.Sprint(msg))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
