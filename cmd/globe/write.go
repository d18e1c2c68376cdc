package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/c3i/globe/internal/globe"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/fatih/color"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const commandTimeout = 15 * time.Second

// withHub runs fn against a websocket store connected to the hub.
func withHub(ctx context.Context, fn func(ctx context.Context, s storage.Store) error) error {
	s, err := openStore(clientStoreConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(ctx, s)
}

func normalizeColor(s string) (string, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("invalid color %q: use #rrggbb", s)
	}
	return c.Hex(), nil
}

var plotCmd = &cobra.Command{
	Use:   "plot <latitude> <longitude>",
	Short: "Plot a waypoint at typed coordinates",
	Long: `Plot a waypoint at the given latitude and longitude.

Examples:
  globe plot 41.88 -87.63
  globe plot --label sydney --color "#00ff00" -- -33.86 151.21`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude: %w", err)
		}

		return withHub(cmd.Context(), func(ctx context.Context, s storage.Store) error {
			view := globe.New(s, globe.Config{Radius: viper.GetFloat64("globe.radius"), User: user, Logger: logger})
			wp, err := view.WaypointAt(lat, lon)
			if err != nil {
				return err
			}
			if label, _ := cmd.Flags().GetString("label"); label != "" {
				wp.Label = label
			}
			if c, _ := cmd.Flags().GetString("color"); c != "" {
				if wp.Color, err = normalizeColor(c); err != nil {
					return err
				}
			}

			id, err := s.Add(ctx, wp)
			if err != nil {
				return fmt.Errorf("failed to plot waypoint: %w", err)
			}
			wp.ID = id
			color.Green("✓ Plotted %s", wp.DisplayLabel())
			fmt.Printf("  %s\n", formatWaypoint(wp, time.Now()))
			return nil
		})
	},
}

var labelCmd = &cobra.Command{
	Use:   "label <id> <text>",
	Short: "Rename a waypoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd.Context(), func(ctx context.Context, s storage.Store) error {
			if err := s.Update(ctx, args[0], core.LabelPatch(args[1])); err != nil {
				return fmt.Errorf("failed to rename %s: %w", args[0], err)
			}
			color.Green("✓ Renamed %s to %s", shortID(args[0]), args[1])
			return nil
		})
	},
}

var colorCmd = &cobra.Command{
	Use:   "color <id> <#rrggbb>",
	Short: "Recolor a waypoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hex, err := normalizeColor(args[1])
		if err != nil {
			return err
		}
		return withHub(cmd.Context(), func(ctx context.Context, s storage.Store) error {
			if err := s.Update(ctx, args[0], core.ColorPatch(hex)); err != nil {
				return fmt.Errorf("failed to recolor %s: %w", args[0], err)
			}
			color.Green("✓ Recolored %s %s", shortID(args[0]), swatch(hex))
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a waypoint",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd.Context(), func(ctx context.Context, s storage.Store) error {
			if err := s.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			color.Green("✓ Deleted %s", shortID(args[0]))
			return nil
		})
	},
}

func init() {
	plotCmd.Flags().StringP("label", "l", "", "waypoint label (default WP-nnnn)")
	plotCmd.Flags().StringP("color", "c", "", "waypoint color as #rrggbb (default "+core.DefaultColor+")")

	rootCmd.AddCommand(plotCmd, labelCmd, colorCmd, removeCmd)
}
