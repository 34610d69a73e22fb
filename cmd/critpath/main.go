package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshharrison/critpath/internal/api"
	"github.com/joshharrison/critpath/internal/bd"
	"github.com/joshharrison/critpath/internal/claude"
	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logger"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/scenario"
	"github.com/joshharrison/critpath/internal/store"
	"github.com/joshharrison/critpath/internal/ui"
)

var (
	flagStore     string
	flagJSON      bool
	flagVerbose   bool
	flagQuiet     bool
	flagLogFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "critpath",
		Short: "Schedule dependent tasks with the critical path method",
		Long: `Critpath keeps a set of tasks and the dependencies between them, refuses
any change that would introduce a cycle, and recomputes every task's earliest
and latest dates after each change. Tasks with zero slack form the critical
path.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(flagVerbose, flagLogFormat == "json", flagQuiet)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", envOr("CRITPATH_STORE", store.DefaultPath()), "Task store file")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(depsCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(inferDepsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openStore() (*store.Store, error) {
	st, err := store.Open(flagStore)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func buildReport(st *store.Store) (*reporter.Reporter, error) {
	tasks, edges := st.Snapshot()
	return reporter.New(tasks, edges, time.Now())
}

// mutated reports a mutation whose store write succeeded but whose schedule
// could not be recomputed. The task is kept; its dates read as unknown.
func mutated(t graph.Task, err error) (graph.Task, error) {
	if err != nil && t.ID != "" && isRecomputeOnly(err) {
		logger.WithField("task", t.ID).Warnf("%v", err)
		return t, nil
	}
	return t, err
}

func addCmd() *cobra.Command {
	var (
		flagDays int
		flagDue  string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}

			due, err := parseDue(flagDue)
			if err != nil {
				return err
			}

			t, err := mutated(st.Create(store.NewTask{
				Title:        strings.Join(args, " "),
				DurationDays: flagDays,
				DueDate:      due,
			}))
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(t)
			}
			fmt.Printf("✅ Added %s %s (%dd)\n", ui.TaskPrefix(t.ID), t.Title, t.DurationDays)
			return nil
		},
	}

	cmd.Flags().IntVarP(&flagDays, "days", "d", 1, "Duration in days")
	cmd.Flags().StringVar(&flagDue, "due", "", "Due date (2006-01-02, RFC3339 or +Nd)")

	return cmd
}

func editCmd() *cobra.Command {
	var (
		flagTitle    string
		flagDays     int
		flagDue      string
		flagClearDue bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title, duration or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p store.Patch
			if cmd.Flags().Changed("title") {
				p.Title = &flagTitle
			}
			if cmd.Flags().Changed("days") {
				p.DurationDays = &flagDays
			}
			if cmd.Flags().Changed("due") {
				due, err := parseDue(flagDue)
				if err != nil {
					return err
				}
				if due == nil {
					p.ClearDueDate = true
				} else {
					p.DueDate = due
				}
			}
			if flagClearDue {
				p.ClearDueDate = true
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			t, err := mutated(st.Update(args[0], p))
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(t)
			}
			fmt.Printf("✏️  Updated %s %s\n", ui.TaskPrefix(t.ID), t.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagTitle, "title", "", "New title")
	cmd.Flags().IntVarP(&flagDays, "days", "d", 1, "New duration in days")
	cmd.Flags().StringVar(&flagDue, "due", "", "New due date (empty clears it)")
	cmd.Flags().BoolVar(&flagClearDue, "clear-due", false, "Remove the due date")

	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks and every dependency touching them",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := st.Delete(id); err != nil {
					if !isRecomputeOnly(err) {
						return err
					}
					logger.WithField("task", id).Warnf("%v", err)
				}
				if !flagJSON {
					fmt.Printf("🗑️  Deleted %s\n", ui.TaskPrefix(id))
				}
			}
			if flagJSON {
				return outputJSON(map[string][]string{"deleted": args})
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "schedule"},
		Short:   "Show every task with its schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			rpt, err := buildReport(st)
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(rpt.Summary())
			}
			if len(rpt.Tasks) == 0 {
				fmt.Println("No tasks. Add one with `critpath add <title>` or run `critpath seed`.")
				return nil
			}
			rpt.PrintSchedule(os.Stdout)
			return nil
		},
	}
}

func depsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Inspect or change a task's dependencies",
	}
	cmd.AddCommand(depsShowCmd())
	cmd.AddCommand(depsSetCmd())
	cmd.AddCommand(depsAddCmd())
	cmd.AddCommand(depsCheckCmd())
	return cmd
}

func depsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "List what a task depends on and what depends on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			d, err := st.Detail(args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(d)
			}

			fmt.Printf("%s %s\n", ui.TaskPrefix(d.ID), ui.Bold(d.Title))
			printRefs("Depends on", d.Dependencies)
			printRefs("Needed by", d.Dependents)
			return nil
		},
	}
}

func printRefs(label string, refs []store.Ref) {
	if len(refs) == 0 {
		fmt.Printf("  %s %s\n", ui.BoldCyan(label+":"), ui.Dim("none"))
		return
	}
	fmt.Printf("  %s\n", ui.BoldCyan(label+":"))
	for _, r := range refs {
		fmt.Printf("    %s %s\n", ui.TaskPrefix(r.ID), r.Title)
	}
}

func depsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> [dependency-id...]",
		Short: "Replace a task's dependencies (no ids clears them)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if _, err := mutated(st.ReplaceDependencies(args[0], args[1:])); err != nil {
				return err
			}
			d, err := st.Detail(args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(d)
			}
			fmt.Printf("🔗 %s now depends on %d task(s)\n", ui.TaskPrefix(d.ID), len(d.Dependencies))
			return nil
		},
	}
}

func depsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <dependency-id>",
		Short: "Make a task wait for another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if err := st.AddDependency(args[0], args[1]); err != nil && !isRecomputeOnly(err) {
				return err
			}
			if flagJSON {
				return outputJSON(graph.Edge{DependencyID: args[1], DependentID: args[0]})
			}
			fmt.Printf("🔗 %s waits for %s\n", ui.TaskPrefix(args[0]), ui.TaskPrefix(args[1]))
			return nil
		},
	}
}

func depsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <id> [dependency-id...]",
		Short: "Check whether a dependency set would be accepted, without changing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			edges, err := st.CheckDependencies(args[0], args[1:])
			ok := err == nil

			if flagJSON {
				out := struct {
					OK    bool         `json:"ok"`
					Error string       `json:"error,omitempty"`
					Edges []graph.Edge `json:"edges"`
				}{OK: ok, Edges: edges}
				if err != nil {
					out.Error = err.Error()
				}
				if out.Edges == nil {
					out.Edges = []graph.Edge{}
				}
				return outputJSON(out)
			}

			if !ok {
				fmt.Printf("%s %v\n", ui.Red("❌ REJECTED:"), err)
				return err
			}
			fmt.Printf("%s %d dependency edge(s) keep the graph acyclic\n", ui.Green("✅ OK:"), len(edges))
			return nil
		},
	}
}

// isRecomputeOnly reports errors where the mutation was committed but the
// schedule could not be derived.
func isRecomputeOnly(err error) bool {
	return errors.Is(err, cpm.ErrCycleDetected)
}

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print tasks in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			tasks, edges := st.Snapshot()
			order, err := cpm.Order(tasks, edges)
			if err != nil {
				return err
			}
			if flagJSON {
				if order == nil {
					order = []string{}
				}
				return outputJSON(order)
			}

			titles := make(map[string]string, len(tasks))
			for _, t := range tasks {
				titles[t.ID] = t.Title
			}
			for i, id := range order {
				fmt.Printf("%3d. %s %s\n", i+1, ui.TaskPrefix(id), titles[id])
			}
			return nil
		},
	}
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute every task's schedule from today",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if err := st.Recompute(); err != nil {
				return err
			}
			rpt, err := buildReport(st)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(rpt.Summary())
			}
			rpt.PrintSchedule(os.Stdout)
			return nil
		},
	}
}

func vizCmd() *cobra.Command {
	var flagFormat string

	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Print the task graph as ASCII waves or Graphviz DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			rpt, err := buildReport(st)
			if err != nil {
				return err
			}

			switch flagFormat {
			case "dot":
				rpt.PrintDOT(os.Stdout)
			case "ascii":
				rpt.PrintASCII(os.Stdout)
			default:
				return fmt.Errorf("unknown format %q (want ascii or dot)", flagFormat)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "ascii", "Output format (ascii, dot)")

	return cmd
}

func seedCmd() *cobra.Command {
	var flagDelete []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the store with the five-task reference project",
		Long: `Loads tasks A (Design) through E (QA) with dependencies A→B, A→C, B→D,
C→D and D→E, then prints the resulting schedule. --delete removes tasks by
reference after loading, for example --delete C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := scenario.Standard()
			sc.Deletions = flagDelete
			return applyScenario(cmd.Context(), sc)
		},
	}

	cmd.Flags().StringSliceVar(&flagDelete, "delete", nil, "Task refs to delete after loading (A-E)")

	return cmd
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Replace the store with a scenario file (.json, .yaml or .hcl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			return applyScenario(cmd.Context(), sc)
		},
	}
}

func applyScenario(ctx context.Context, sc *scenario.Scenario) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore()
	if err != nil {
		return err
	}

	var onStep scenario.StepFunc
	if !flagJSON {
		onStep = func(header string) error {
			rpt, err := buildReport(st)
			if err != nil {
				return err
			}
			rpt.PrintSummary(os.Stdout, header)
			return nil
		}
	}

	ids, err := scenario.Apply(ctx, st, sc, time.Now(), onStep)
	if err != nil {
		return err
	}

	if flagJSON {
		rpt, err := buildReport(st)
		if err != nil {
			return err
		}
		return outputJSON(struct {
			IDs      map[string]string       `json:"ids"`
			Schedule reporter.ScheduleReport `json:"schedule"`
		}{IDs: ids, Schedule: rpt.Summary()})
	}
	return nil
}

func importCmd() *cobra.Command {
	var (
		flagDB    string
		flagBdBin string
		flagIDs   []string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the store with open issues from a beads database",
		Long: `Reads open issues and their dependencies through the bd CLI. Estimates
(minutes) become whole days, rounded up. Dependencies on issues that are not
open are dropped. --id imports only the named issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			client := bd.NewClient(flagBdBin, flagDB)
			var raw []bd.RawTask
			var err error
			if len(flagIDs) > 0 {
				raw, err = client.FetchIDs(ctx, flagIDs)
			} else {
				raw, err = client.Fetch(ctx)
			}
			if err != nil {
				return fmt.Errorf("read beads: %w", err)
			}
			if len(raw) == 0 {
				return fmt.Errorf("no open issues found")
			}
			tasks, edges := bd.ToTasks(raw)

			st, err := openStore()
			if err != nil {
				return err
			}
			if err := st.Replace(tasks, edges); err != nil {
				return err
			}

			if flagJSON {
				rpt, err := buildReport(st)
				if err != nil {
					return err
				}
				return outputJSON(rpt.Summary())
			}
			fmt.Printf("📥 Imported %s tasks and %s dependencies from beads\n",
				ui.Bold(len(tasks)), ui.Bold(len(edges)))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDB, "db", "", "Beads database path")
	cmd.Flags().StringVar(&flagBdBin, "bd-bin", "bd", "Path to the bd binary")
	cmd.Flags().StringSliceVar(&flagIDs, "id", nil, "Import only these issue ids")

	return cmd
}

func inferDepsCmd() *cobra.Command {
	var (
		flagApply    bool
		flagModel    string
		flagOutput   string
		flagFromFile string
	)

	cmd := &cobra.Command{
		Use:   "infer-deps",
		Short: "Use Claude to infer task dependencies from titles",
		Long: `Sends task titles and durations to Claude and infers dependency edges.
By default runs in dry-run mode. Use --apply to add them to the store; any
edge that would close a cycle is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			tasks := st.List()
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks in %s", st.Path())
			}
			summaries := claude.Summaries(tasks)

			var result *claude.InferDepsResult
			if flagFromFile != "" {
				data, err := os.ReadFile(flagFromFile)
				if err != nil {
					return fmt.Errorf("read from-file: %w", err)
				}
				result = &claude.InferDepsResult{}
				if err := json.Unmarshal(data, result); err != nil {
					return fmt.Errorf("parse from-file: %w", err)
				}
				fmt.Printf("📂 Loaded %s edges from %s\n", ui.Bold(len(result.Edges)), ui.Dim(flagFromFile))
			} else {
				fmt.Printf("🔍 Sending %s tasks to Claude for dependency inference...\n", ui.Bold(len(summaries)))

				claudeClient, err := claude.NewClient("", flagModel)
				if err != nil {
					return err
				}
				result, err = claudeClient.InferDeps(ctx, summaries)
				if err != nil {
					return fmt.Errorf("infer deps: %w", err)
				}
			}

			valid, rejected := result.Filter(summaries)
			for _, r := range rejected {
				fmt.Printf("  %s %s -> %s: %s\n", ui.Yellow("⏭️  SKIP:"), r.Edge.DependencyID, r.Edge.DependentID, r.Reason)
			}

			// Greedily keep edges that leave the graph acyclic.
			ids := graph.IDs(tasks)
			committed := st.Edges()
			var proposed []graph.Edge
			var accepted []claude.DepEdge
			for _, e := range valid {
				edge := graph.Edge{DependencyID: e.DependencyID, DependentID: e.DependentID}
				if cpm.WouldCreateCycle(ids, committed, append(proposed, edge)) {
					fmt.Printf("  %s would create cycle: %s -> %s\n", ui.Yellow("⏭️  SKIP:"), e.DependencyID, e.DependentID)
					continue
				}
				proposed = append(proposed, edge)
				accepted = append(accepted, e)
			}

			if flagJSON {
				out := struct {
					Edges   []claude.DepEdge `json:"edges"`
					Summary string           `json:"summary"`
				}{
					Edges:   accepted,
					Summary: result.Summary,
				}
				if flagOutput != "" {
					data, err := json.MarshalIndent(out, "", "  ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(flagOutput, data, 0644); err != nil {
						return err
					}
					fmt.Printf("Wrote %d edges to %s\n", len(accepted), flagOutput)
					return nil
				}
				return outputJSON(out)
			}

			titles := make(map[string]string, len(tasks))
			for _, t := range tasks {
				titles[t.ID] = t.Title
			}

			fmt.Printf("\n🔗 Inferred %s dependencies (%d from Claude, %d after validation):\n\n",
				ui.Bold(len(accepted)), len(result.Edges), len(accepted))
			for _, e := range accepted {
				fmt.Printf("  %s %s waits for %s: %s\n", ui.Cyan("→"),
					ui.BoldMagenta(titles[e.DependentID]), ui.BoldMagenta(titles[e.DependencyID]), ui.Dim(e.Reason))
			}
			if result.Summary != "" {
				fmt.Printf("\n💡 %s %s\n", ui.BoldWhite("Summary:"), result.Summary)
			}

			if !flagApply {
				fmt.Printf("\n🎯 %s\n", ui.Yellow("Dry run. Use --apply to add these dependencies."))
				return nil
			}

			fmt.Printf("\n📝 Applying %s dependencies...\n", ui.Bold(len(accepted)))
			applied := 0
			for _, e := range accepted {
				err := st.AddDependency(e.DependentID, e.DependencyID)
				switch {
				case errors.Is(err, store.ErrCircularDependency):
					fmt.Printf("  %s would create cycle: %s -> %s\n", ui.Yellow("⏭️  SKIP:"), e.DependencyID, e.DependentID)
					continue
				case err != nil && !isRecomputeOnly(err):
					fmt.Printf("  %s %s -> %s: %v\n", ui.Red("❌ ERROR:"), e.DependencyID, e.DependentID, err)
					continue
				}
				applied++
				fmt.Printf("  %s %s waits for %s\n", ui.Green("✅ OK:"), ui.TaskPrefix(e.DependentID), ui.TaskPrefix(e.DependencyID))
			}
			fmt.Printf("\n🏁 Applied %s/%d dependencies.\n", ui.BoldGreen(applied), len(accepted))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagApply, "apply", false, "Add inferred deps to the store (default: dry-run)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model to use (default: "+claude.DefaultModel+")")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Save JSON output to file (use with --json)")
	cmd.Flags().StringVar(&flagFromFile, "from-file", "", "Load inferred deps from a JSON file instead of calling Claude")

	return cmd
}

func serveCmd() *cobra.Command {
	var (
		flagAddr    string
		flagMemory  bool
		flagSeed    bool
		flagRefresh time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task store over a JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st *store.Store
			if flagMemory {
				st = store.OpenMemory()
			} else {
				var err error
				if st, err = openStore(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if flagSeed {
				if _, err := scenario.Apply(ctx, st, scenario.Standard(), time.Now(), nil); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
			}

			if !flagQuiet && !flagJSON {
				ui.PrintLogo()
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return api.New(st).Start(ctx, flagAddr, nil)
			})
			if flagRefresh > 0 {
				// Dates are relative to today, so they go stale across midnight.
				g.Go(func() error {
					ticker := time.NewTicker(flagRefresh)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							if err := st.Recompute(); err != nil {
								logger.Warnf("scheduled recompute: %v", err)
							}
						}
					}
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", envOr("CRITPATH_ADDR", ":8080"), "Listen address")
	cmd.Flags().BoolVar(&flagMemory, "memory", false, "Keep tasks in memory only")
	cmd.Flags().BoolVar(&flagSeed, "seed", false, "Load the reference project on start")
	cmd.Flags().DurationVar(&flagRefresh, "refresh", time.Hour, "Recompute interval (0 disables)")

	return cmd
}

func parseDue(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	due := scenario.ParseDueDate(s, time.Now())
	if due == nil {
		return nil, fmt.Errorf("invalid due date %q (want 2006-01-02, RFC3339 or +Nd)", s)
	}
	return due, nil
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
