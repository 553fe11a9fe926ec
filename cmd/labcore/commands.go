package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labcore/internal/config"
	"labcore/internal/core"
	"labcore/internal/infra/persistence/records"
)

const version = "0.1.0"

func rootCmd() *cobra.Command {
	var opts globalOptions
	cmd := &cobra.Command{
		Use:           "labcore",
		Short:         "Career and consistency engine for staff, projects, labs and equipment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.storageDriver, "storage-driver", "", "Storage backend (memory, sqlite, postgres)")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file")
	flags.StringVar(&opts.archiveDriver, "archive-driver", "", "Archive backend (none, fs, memory, s3)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.BoolVar(&opts.trace, "trace", false, "Log one span per service operation")

	cmd.AddCommand(
		loadCmd(&opts),
		importCmd(&opts),
		exportCmd(&opts),
		refreshCmd(&opts),
		listCmd(&opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "labcore version %s\n", version)
			},
		},
	)
	return cmd
}

func resolveConfig(cmd *cobra.Command, opts *globalOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("storage-driver") {
		cfg.StorageDriver = opts.storageDriver
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = opts.sqlitePath
	}
	if flags.Changed("archive-driver") {
		cfg.ArchiveDriver = opts.archiveDriver
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// withApp builds the application for one command run and releases it afterwards.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, *opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(ctx); err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, a)
}

func loadCmd(opts *globalOptions) *cobra.Command {
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Reconcile the stored registry and persist any healing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.reload(ctx)
				if err != nil {
					return err
				}
				writeReport(cmd.OutOrStdout(), report)
				if !snapshot {
					return nil
				}
				info, err := a.svc.ArchiveSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("archive snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot=%s\n", info.Key)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Archive a registry snapshot after loading")
	return cmd
}

func importCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset.yaml>",
		Short: "Replace the stored registry with a reconciled YAML dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, err := records.LoadYAMLFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.svc.Load(ctx, dataset)
				if err != nil {
					return err
				}
				writeReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func exportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [dataset.yaml]",
		Short: "Write the reconciled registry as a YAML dataset (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.reload(ctx); err != nil {
					return err
				}
				set := records.Encode(a.store.ExportState())
				if len(args) == 0 || args[0] == "-" {
					return records.EncodeYAML(cmd.OutOrStdout(), set)
				}
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("create dataset: %w", err)
				}
				if err := records.EncodeYAML(f, set); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}

func refreshCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Advance tenure tiers that have come due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.reload(ctx); err != nil {
					return err
				}
				badges, _, err := a.svc.RefreshCareers(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed=%d %s\n", len(badges), strings.Join(badges, ","))
				return nil
			})
		},
	}
}

var listKinds = map[string]func(svc *core.Service, ctx context.Context, badge string) ([][]string, error){
	"permanent": func(svc *core.Service, ctx context.Context, _ string) ([][]string, error) {
		return svc.FetchPermanentEmployees(ctx)
	},
	"staff": func(svc *core.Service, ctx context.Context, _ string) ([][]string, error) {
		return svc.FetchProjectEmployees(ctx)
	},
	"events": func(svc *core.Service, ctx context.Context, badge string) ([][]string, error) {
		return svc.FetchCareerEvents(ctx, badge)
	},
	"projects": func(svc *core.Service, ctx context.Context, _ string) ([][]string, error) {
		return svc.FetchProjects(ctx)
	},
	"labs": func(svc *core.Service, ctx context.Context, _ string) ([][]string, error) {
		return svc.FetchLabs(ctx)
	},
	"equipment": func(svc *core.Service, ctx context.Context, _ string) ([][]string, error) {
		return svc.FetchEquipment(ctx)
	},
}

func listKindNames() []string {
	names := make([]string, 0, len(listKinds))
	for name := range listKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func listCmd(opts *globalOptions) *cobra.Command {
	var badge string
	cmd := &cobra.Command{
		Use:       "list <kind>",
		Short:     "Print the rows of one entity kind",
		Long:      "Print the rows of one entity kind: " + strings.Join(listKindNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: listKindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch, ok := listKinds[args[0]]
			if !ok {
				return fmt.Errorf("unknown kind %q (want one of %s)", args[0], strings.Join(listKindNames(), ", "))
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.reload(ctx); err != nil {
					return err
				}
				rows, err := fetch(a.svc, ctx, badge)
				if err != nil {
					return err
				}
				return writeRows(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringVar(&badge, "badge", "", "Only list the career events of this badge")
	return cmd
}

func writeRows(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
