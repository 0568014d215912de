// Command pikoctl reads a Kostal PIKO inverter once and prints the result.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
)

type options struct {
	host     string
	username string
	password string
	timeout  time.Duration
	jsonOut  bool
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "pikoctl",
		Short:        "Read values from a Kostal PIKO inverter",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.host, "host", os.Getenv("PIKO_HOST"), "inverter address (env PIKO_HOST)")
	root.PersistentFlags().StringVarP(&opts.username, "username", "u", piko.DefaultUsername, "web interface user")
	root.PersistentFlags().StringVarP(&opts.password, "password", "p", piko.DefaultPassword, "web interface password")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", piko.DefaultTimeout, "request timeout")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log fetch and parse events")

	root.AddCommand(newReadCmd(opts), newInfoCmd(opts))
	return root
}

func (o *options) fetcher() (*piko.HTTPFetcher, error) {
	if o.host == "" {
		return nil, errors.New("--host is required")
	}
	return piko.NewHTTPFetcher(o.host,
		piko.WithCredentials(o.username, o.password),
		piko.WithHTTPClient(&http.Client{Timeout: o.timeout}),
	), nil
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Poll measurements and own consumption once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.fetcher()
			if err != nil {
				return err
			}
			client := piko.NewClient(f, piko.WithLogger(opts.logger()))
			snap := client.Refresh(cmd.Context())
			// without measurements only installed consumption data is worth printing
			if snap.DataErr != nil && !snap.Consumption.Installed() {
				return fmt.Errorf("inverter not reachable: %w", snap.DataErr)
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), snapshotRows(snap))
			}
			return writeTable(cmd.OutOrStdout(), snapshotRows(snap))
		},
	}
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print serial number and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.fetcher()
			if err != nil {
				return err
			}
			info, err := f.FetchInfo(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			return writeTable(cmd.OutOrStdout(), []row{{"serial", info.Serial}, {"model", info.Model}})
		},
	}
}

type row struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// snapshotRows lists every field of the detected layout. Fields without a
// usable value are shown as "-".
func snapshotRows(snap *piko.Snapshot) []row {
	var rows []row
	if snap.DataErr != nil {
		rows = append(rows, row{"layout", snap.DataErr.Error()})
	} else if layout, err := snap.Data.Layout(); err == nil {
		rows = append(rows, row{"layout", fmt.Sprintf("%d strings, %d phases", layout.Strings, layout.Phases)})
		for _, f := range piko.Fields() {
			if !layout.Has(f) {
				continue
			}
			rows = append(rows, row{f.String(), fieldValue(snap.Data, f)})
		}
	} else {
		rows = append(rows, row{"layout", err.Error()})
	}

	if snap.Consumption != nil && !snap.Consumption.Installed() {
		rows = append(rows, row{"consumption", piko.ErrSensorNotInstalled.Error()})
		return rows
	}
	rows = append(rows, row{"solar_generator_power", consumptionValue(snap.Consumption.SolarGeneratorPower())})
	for phase := 1; phase <= 3; phase++ {
		rows = append(rows, row{"consumption_phase_" + strconv.Itoa(phase), consumptionValue(snap.Consumption.Phase(phase))})
	}
	return rows
}

func fieldValue(d *piko.Data, f piko.Field) string {
	if !f.Numeric() {
		if s, ok := d.Text(f); ok {
			return s
		}
		return "-"
	}
	v, ok := d.Value(f)
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func consumptionValue(v float64, err error) string {
	if err != nil {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeTable(w io.Writer, rows []row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Value)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
