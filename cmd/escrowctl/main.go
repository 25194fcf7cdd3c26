package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/gigescrow/internal/api/middleware"
	"github.com/timmy/gigescrow/internal/app"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/service"
)

type rootOptions struct {
	configPath string
	json       bool
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Operate the gig escrow marketplace backend",
		Long:          "escrowctl reconciles stored jobs with the escrow contract, repairs assignments and inspects transactions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetDefaultLogger(logger.New(&logger.Config{
				Level:       opts.logLevel,
				Format:      "text",
				Output:      os.Stderr,
				ServiceName: "escrowctl",
			}))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config file")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	cmd.AddCommand(reconcileCmd(opts))
	cmd.AddCommand(repairCmd(opts))
	cmd.AddCommand(mirrorCmd(opts))
	cmd.AddCommand(txStatusCmd(opts))
	cmd.AddCommand(tokenCmd(opts))
	return cmd
}

// withApp loads configuration, wires the application and runs fn with it.
func withApp(ctx context.Context, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger.GetDefault())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(logger.SetComponent(ctx, "escrowctl"), a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

type reconcileRow struct {
	JobID       string               `json:"job_id"`
	Status      domain.JobStatus     `json:"status,omitempty"`
	Freelancer  string               `json:"freelancer_address,omitempty"`
	Corrections []service.Correction `json:"corrections"`
	Error       string               `json:"error,omitempty"`
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	var (
		all         bool
		onChainOnly bool
		repair      bool
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "reconcile [job-id...]",
		Short: "Reconcile jobs with the escrow contract",
		Long:  "Reconcile the named jobs, or every stored job with --all, and print the corrections persisted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass either job ids or --all")
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if all {
					stats, err := a.Services.Sweep.Sweep(ctx, service.SweepOptions{
						Limit:       limit,
						OnChainOnly: onChainOnly,
						Repair:      repair,
					})
					if stats != nil {
						if opts.json {
							if perr := printJSON(stats); perr != nil {
								return perr
							}
						} else {
							printSweepStats(stats)
						}
					}
					return err
				}
				return reconcileIDs(ctx, a, args, opts.json)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "sweep every stored job")
	cmd.Flags().BoolVar(&onChainOnly, "on-chain-only", false, "with --all, skip jobs never linked to the contract")
	cmd.Flags().BoolVar(&repair, "repair", false, "with --all, also restore assignments from accepted proposals")
	cmd.Flags().IntVar(&limit, "limit", 0, "with --all, stop after this many jobs (0 = no limit)")
	return cmd
}

func reconcileIDs(ctx context.Context, a *app.App, ids []string, asJSON bool) error {
	rows := make([]reconcileRow, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.Config.Reconcile.Concurrency, 1))
	for i, id := range ids {
		g.Go(func() error {
			row := reconcileRow{JobID: id, Corrections: []service.Correction{}}
			job, corrections, err := a.Reconciler.ReconcileWithReport(gctx, id)
			if err != nil {
				row.Error = err.Error()
			} else {
				row.Status = job.Status
				row.Freelancer = job.Freelancer()
				row.Corrections = append(row.Corrections, corrections...)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if asJSON {
		return printJSON(rows)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Job", "Status", "Freelancer", "Field", "From", "To", "Reason"})
	failed := 0
	for _, r := range rows {
		if r.Error != "" {
			failed++
			tw.AppendRow(table.Row{r.JobID, "error", "", "", "", "", r.Error})
			continue
		}
		if len(r.Corrections) == 0 {
			tw.AppendRow(table.Row{r.JobID, r.Status, r.Freelancer, "-", "", "", "in sync"})
			continue
		}
		for _, c := range r.Corrections {
			tw.AppendRow(table.Row{r.JobID, r.Status, r.Freelancer, c.Field, c.From, c.To, c.Reason})
		}
	}
	tw.Render()
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed to reconcile", failed, len(rows))
	}
	return nil
}

func printSweepStats(stats *service.SweepStats) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Total", "Corrected", "Corrections", "Repaired", "Failed", "Duration"})
	tw.AppendRow(table.Row{
		stats.TotalJobs, stats.CorrectedJobs, stats.Corrections, stats.RepairedJobs, stats.FailedJobs,
		stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond),
	})
	tw.Render()
}

func repairCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <job-id>...",
		Short: "Restore job assignments from accepted proposals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				var (
					mu   sync.Mutex
					jobs []*domain.Job
				)
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(max(a.Config.Reconcile.Concurrency, 1))
				for _, id := range args {
					g.Go(func() error {
						job, err := a.Services.Acceptance.RepairAssignment(gctx, id)
						if err != nil {
							return fmt.Errorf("repair %s: %w", id, err)
						}
						mu.Lock()
						jobs = append(jobs, job)
						mu.Unlock()
						return nil
					})
				}
				err := g.Wait()
				if opts.json {
					if perr := printJSON(jobs); perr != nil {
						return perr
					}
					return err
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Job", "Status", "Freelancer"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Status, j.Freelancer()})
				}
				tw.Render()
				return err
			})
		},
	}
}

func mirrorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror <chain-job-id>",
		Short: "Show the escrow contract's record of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chain job id %q", args[0])
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				res := a.Gateway.JobMirror(ctx, id)
				if res.State != domain.MirrorOK {
					return fmt.Errorf("mirror %s: %v", res.State, res.Err)
				}
				if opts.json {
					return printJSON(res.Job)
				}
				j := res.Job
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Status", "Client", "Freelancer", "Amount (wei)", "Released"})
				tw.AppendRow(table.Row{j.ID, j.Status, j.Client, j.Freelancer, j.AmountWei, j.FundsReleased})
				tw.Render()
				return nil
			})
		},
	}
}

func txStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tx-status <tx-hash>",
		Short: "Report whether a transaction is pending, succeeded or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				status, err := a.Services.Jobs.TransactionStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(status)
				}
				block := "-"
				if status.BlockNumber != nil {
					block = strconv.FormatUint(*status.BlockNumber, 10)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Hash", "Status", "Block"})
				tw.AppendRow(table.Row{status.TxHash, status.Status, block})
				tw.Render()
				return nil
			})
		},
	}
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <wallet-address>",
		Short: "Issue an API bearer token for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := middleware.IssueToken(cfg.Auth.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(map[string]any{"token": token, "subject": domain.NormalizeAddress(args[0]), "ttl": ttl.String()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
