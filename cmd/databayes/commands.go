package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/objcore"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

type writeFlags struct {
	file      string
	index     []string
	timeField string
}

func (w *writeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&w.file, "file", "f", "-", "JSON input file, - for stdin")
	cmd.Flags().StringSliceVarP(&w.index, "index", "i", nil, "Keys identifying a record (tags)")
	cmd.Flags().StringVar(&w.timeField, "time-field", "", "Record key holding the timestamp")
}

func (w *writeFlags) options() []backend.WriteOption {
	var opts []backend.WriteOption
	if len(w.index) > 0 {
		opts = append(opts, backend.WithIndex(w.index...))
	}
	if w.timeField != "" {
		opts = append(opts, backend.WithTimeField(w.timeField))
	}
	return opts
}

func (a *app) putCommand() *cobra.Command {
	var wf writeFlags
	cmd := &cobra.Command{
		Use:   "put ENDPOINT",
		Short: "Write a JSON array of records to an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(wf.file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				result := b.Put(ctx, args[0], records, wf.options()...)
				if err := writeJSON(a.out, result); err != nil {
					return err
				}
				if result.FailureCount > 0 {
					return fmt.Errorf("%d of %d records rejected", result.FailureCount, len(records))
				}
				return nil
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (a *app) updateCommand() *cobra.Command {
	var wf writeFlags
	cmd := &cobra.Command{
		Use:   "update ENDPOINT",
		Short: "Replace a single record given as a JSON object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(wf.file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(records) != 1 {
				return fmt.Errorf("update takes exactly one record, got %d", len(records))
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				if !b.Update(ctx, args[0], records[0], wf.options()...) {
					return errors.New("update failed, see log")
				}
				return nil
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (a *app) getCommand() *cobra.Command {
	var (
		filters    []string
		projection []string
		limit      int
		timeField  string
		localTime  bool
		asTable    bool
	)
	cmd := &cobra.Command{
		Use:   "get ENDPOINT",
		Short: "Read an endpoint as wide rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parsePairs(filters)
			if err != nil {
				return err
			}
			q := backend.Query{
				Filter:     toAnyMap(filter),
				Projection: projection,
				Limit:      limit,
				TimeField:  timeField,
				LocalTime:  localTime,
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				table, err := b.Get(ctx, args[0], q)
				if err != nil {
					return err
				}
				if asTable {
					return writeJSON(a.out, table)
				}
				return writeJSON(a.out, table.Records())
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&filters, "filter", nil, "Equality filter key=value, repeatable")
	f.StringSliceVarP(&projection, "projection", "p", nil, "Fields to return")
	f.IntVarP(&limit, "limit", "n", 0, "Maximum rows (0 = no limit)")
	f.StringVar(&timeField, "time-field", "", "Name of the time column in the output")
	f.BoolVar(&localTime, "local-time", false, "Convert timestamps to the local zone")
	f.BoolVar(&asTable, "table", false, "Print columns and rows instead of a list of records")
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	var (
		start, stop string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "delete ENDPOINT",
		Short: "Delete records in a time range matching every tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := parseTime(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			stopTime, err := parseTime(stop)
			if err != nil {
				return fmt.Errorf("invalid --stop: %w", err)
			}
			if stopTime.Before(startTime) {
				return fmt.Errorf("--stop %s is before --start %s", stopTime, startTime)
			}
			tagMap, err := parsePairs(tags)
			if err != nil {
				return err
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				if !b.Delete(ctx, args[0], startTime, stopTime, tagMap) {
					return errors.New("delete failed, see log")
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&start, "start", "1970-01-01T00:00:00Z", "Range start (RFC3339)")
	f.StringVar(&stop, "stop", "", "Range stop (RFC3339, default now)")
	f.StringArrayVar(&tags, "tag", nil, "Tag equality key=value, repeatable")
	return cmd
}

func (a *app) sizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "size ENDPOINT",
		Short: "Count the values stored under an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				n, err := b.Size(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, n)
				return nil
			})
		},
	}
}

func (a *app) resetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset [ENDPOINT]",
		Short: "Destroy the collection behind an endpoint, or the backend's own",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset destroys data; pass --yes to confirm")
			}
			endpoint := ""
			if len(args) == 1 {
				endpoint = args[0]
			}
			return a.withBackend(cmd, func(ctx context.Context, b backend.Backend) error {
				if !b.Reset(ctx, endpoint) {
					return errors.New("reset failed, see log")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func (a *app) typesCommand() *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "types [ROOT]",
		Short: "List the registered types under a root",
		Args:  cobra.MaximumNArgs(1),
		// No backend or config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			root := objcore.RootName
			if len(args) == 1 {
				root = args[0]
			}
			for _, name := range a.registry.Subtypes(root, !direct) {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "Only direct subtypes")
	return cmd
}

// parseTime accepts RFC3339 or anything cast understands; empty means now.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return cast.ToTimeE(s)
}
