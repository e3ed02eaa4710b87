package command

import (
	"fmt"

	"github.com/couchcryptid/city-search/internal/adapter/suggestapi"
	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var suggestLatitude, suggestLongitude float64

var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Print the suggestions the API returns for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().Float64Var(&suggestLatitude, "latitude", 0, "bias suggestions towards this latitude")
	suggestCmd.Flags().Float64Var(&suggestLongitude, "longitude", 0, "bias suggestions towards this longitude")
	suggestCmd.MarkFlagsRequiredTogether("latitude", "longitude")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	client := suggestapi.NewClient(cfg.SuggestAPIURL, cfg.SuggestTimeout, metrics, logger)

	var coord *domain.Coordinate
	if cmd.Flags().Changed("latitude") {
		coord = &domain.Coordinate{Latitude: suggestLatitude, Longitude: suggestLongitude}
		if !coord.Valid() {
			return fmt.Errorf("coordinate %v,%v out of range", suggestLatitude, suggestLongitude)
		}
	}

	cities, err := client.Suggest(cmd.Context(), args[0], coord)
	if err != nil {
		return fmt.Errorf("suggest %q: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	for _, c := range cities {
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", c.ID, c.ASCII, c.Name, c.Country)
	}
	if len(cities) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no suggestions")
	}
	return nil
}
