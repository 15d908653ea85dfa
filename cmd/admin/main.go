package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"citycore/internal/persistence/indexdb"
)

type rootOptions struct {
	DataDir string
	WorldID string
	DBPath  string
	Format  string
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "citycore-admin",
		Short:        "Inspect a city world's index and live server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}
	cmd.SetOut(out)
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.DataDir, "data", "./data", "runtime data directory")
	pf.StringVar(&opts.WorldID, "world", "city_1", "world id")
	pf.StringVar(&opts.DBPath, "db", "", "sqlite db path (default: <data>/worlds/<world>/index/world.sqlite)")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newWorldsCommand(opts))
	cmd.AddCommand(newZonesCommand(opts))
	cmd.AddCommand(newBalancesCommand(opts))
	cmd.AddCommand(newAuditsCommand(opts))
	cmd.AddCommand(newStateCommand(opts))
	return cmd
}

func (o *rootOptions) open() (*indexdb.SQLiteIndex, error) {
	path := strings.TrimSpace(o.DBPath)
	if path == "" {
		path = filepath.Join(o.DataDir, "worlds", o.WorldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index db: %w", err)
	}
	return indexdb.OpenSQLite(path, nil)
}

func (o *rootOptions) emit(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func newWorldsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "List worlds with runtime data",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(filepath.Join(opts.DataDir, "worlds"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintln(cmd.OutOrStdout(), e.Name())
				}
			}
			return nil
		},
	}
}

func newZonesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "zones",
		Short: "Show property ownership as of the last recorded state",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := opts.open()
			if err != nil {
				return err
			}
			defer idx.Close()
			zones, err := idx.Zones(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), zones, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "PROPERTY\tNAME\tOWNER\tFOR SALE\tPRICE\tLAST PAID")
				for _, z := range zones {
					owner := z.OwnerName
					if z.Government {
						owner = "(government)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\n", z.PropertyID, z.Name, owner, z.ForSale, z.Price, z.LastPaid)
				}
			})
		},
	}
}

func newBalancesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show player balances as of the last recorded state",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := opts.open()
			if err != nil {
				return err
			}
			defer idx.Close()
			rows, err := idx.Balances(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "CONN\tNAME\tBALANCE\tSTONE\tONLINE\tTICK")
				for _, b := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%d\n", b.Conn, b.Name, b.Balance, b.Stone, b.Online, b.Tick)
				}
			})
		},
	}
}

func newAuditsCommand(opts *rootOptions) *cobra.Command {
	var f indexdb.AuditFilter
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Show recent audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := opts.open()
			if err != nil {
				return err
			}
			defer idx.Close()
			rows, err := idx.Audits(cmd.Context(), f)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TICK\tACTOR\tACTION\tTARGET\tOK\tCODE\tREASON")
				for _, a := range rows {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\t%s\n", a.Tick, a.Actor, a.Action, a.Target, a.OK, a.Code, a.Reason)
				}
			})
		},
	}
	cmd.Flags().StringVar(&f.Actor, "actor", "", "only this connection id")
	cmd.Flags().StringVar(&f.Action, "action", "", "only this action (e.g. BUY_ZONE)")
	cmd.Flags().Uint64Var(&f.Since, "since", 0, "only ticks at or after")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "result limit")
	return cmd
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Fetch live metrics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("request: %w", err)
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}
