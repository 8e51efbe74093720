package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"llmgate/pkg/types"
)

var clientFlags struct {
	gateway string
	refresh bool
	jsonOut bool
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed in the model server via a running gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := "/models"
		if clientFlags.refresh {
			path += "?refresh=1"
		}
		var resp types.ModelsResponse
		if err := callGateway(cmd.Context(), http.MethodGet, path, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if clientFlags.jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printModels(out, resp.Models, time.Now())
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Ask a running gateway to bring the model server up",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp types.StartResponse
		if err := callGateway(cmd.Context(), http.MethodPost, "/server/start", &resp); err != nil {
			return err
		}
		msg := "model server " + resp.Status
		if resp.Owned {
			msg += fmt.Sprintf(" (managed, pid %d)", resp.PID)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{modelsCmd, startCmd} {
		c.Flags().StringVar(&clientFlags.gateway, "gateway", "http://127.0.0.1:8080", "gateway base URL")
		rootCmd.AddCommand(c)
	}
	modelsCmd.Flags().BoolVar(&clientFlags.refresh, "refresh", false, "bypass the catalog cache")
	modelsCmd.Flags().BoolVar(&clientFlags.jsonOut, "json", false, "print raw JSON")
}

func printModels(w io.Writer, models []types.ModelDescriptor, now time.Time) {
	if len(models) == 0 {
		fmt.Fprintln(w, "no models installed")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tPARAMS\tQUANT\tMODIFIED")
	for _, m := range models {
		modified := "-"
		if !m.Modified.IsZero() {
			modified = humanize.RelTime(m.Modified, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, humanize.Bytes(uint64(m.Size)), orDash(m.ParameterSize), orDash(m.Quant), modified)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func callGateway(ctx context.Context, method, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(clientFlags.gateway, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s (%d %s)", e.Error, resp.StatusCode, e.Kind)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
