package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c3i/globe/internal/api"
	"github.com/c3i/globe/internal/config"
	"github.com/spf13/cobra"
)

func apiClient() *api.Client {
	cfg := config.GetHubConfig()
	return api.New(cfg.APIURL, cfg.Secret)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every waypoint held by the hub",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wps, err := apiClient().ListWaypoints()
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(wps)
		}
		printWaypoints(os.Stdout, wps, time.Now())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export waypoints as GeoJSON",
	Long: `Export every waypoint as a GeoJSON FeatureCollection.

Examples:
  globe export > waypoints.geojson
  globe export --crs 3857 -o mercator.geojson`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		crs, _ := cmd.Flags().GetString("crs")
		out, _ := cmd.Flags().GetString("output")

		if out == "" {
			return apiClient().ExportGeoJSON(os.Stdout, crs)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := apiClient().ExportGeoJSON(f, crs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, faint.Sprintf("Wrote %s", out))
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "print raw JSON")
	exportCmd.Flags().String("crs", "", "coordinate reference system (4326 or 3857)")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	rootCmd.AddCommand(listCmd, exportCmd)
}
