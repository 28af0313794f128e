package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tailorline/internal/app"
	"tailorline/internal/config"
	"tailorline/internal/domain"
	"tailorline/internal/engine"
	"tailorline/internal/repo"
	"tailorline/internal/report"
	"tailorline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Tailorline CLI",
	Long: `Tailorline tracks tailoring projects through their ordered workflow steps.
- Project: one custom order being made, with a deadline, a tailor and a step list.
- Steps: numbered work items (measure, cut, sew...) completed strictly in order.
- Progress: completed steps over total steps; a project is done when every step is.
- Event log: every change, view with 'tl log tail'.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the event log")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// exitCode gives scripts a stable signal: 2 for caller mistakes, 3 for retryable failures.
func exitCode(err error) int {
	var e *engine.Error
	if errors.As(err, &e) {
		if e.Retryable() {
			return 3
		}
		return 2
	}
	return 1
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr != "" {
					cfg.Server.Addr = addr
				}
				if basePath != "" {
					cfg.Server.BasePath = basePath
				}
				if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowActorHeader {
					return fmt.Errorf("auth.jwt_secret (TAILORLINE_AUTH_JWT_SECRET) is required when the actor header is disabled")
				}
				handler, err := server.New(server.Config{
					Engine:         rt.Engine,
					BasePath:       cfg.Server.BasePath,
					Logger:         rt.Log,
					RequestTimeout: cfg.RequestTimeout(),
					Auth: server.AuthConfig{
						JWTSecret:        cfg.Auth.JWTSecret,
						AllowActorHeader: cfg.Auth.AllowActorHeader,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(sctx); err != nil {
						rt.Log.Warn("shutdown", zap.Error(err))
					}
				}()
				rt.Log.Info("serving tailorline api",
					zap.String("addr", cfg.Server.Addr),
					zap.String("base_path", cfg.Server.BasePath),
					zap.String("docs", "/docs"))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load orders, customers, staff, templates and line items from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := repo.LoadFixture(file)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.Repo.Seed(ctx, fx); err != nil {
					return err
				}
				out := map[string]int{
					"orders":    len(fx.Orders),
					"customers": len(fx.Customers),
					"staff":     len(fx.Staff),
					"templates": len(fx.Templates),
					"items":     len(fx.Items),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("seeded %d orders, %d customers, %d staff, %d templates, %d items\n",
					out["orders"], out["customers"], out["staff"], out["templates"], out["items"])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage tailoring projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectExportCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var orderID, customerID, tailorID int64
	var description, deadline, instructions, stepsFile string
	var rush bool
	var steps []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its workflow steps",
		Example: `  tl project create --order 1 --customer 1 --tailor 1 --deadline 2024-05-01 \
    --step 1:1:2 --step 2:2:3 --step 3:3:8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseDeadline(deadline)
			if err != nil {
				return err
			}
			specs, err := collectSteps(steps, stepsFile)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
					OrderID:      orderID,
					CustomerID:   customerID,
					TailorID:     tailorID,
					Description:  description,
					Deadline:     due,
					Rush:         rush,
					Instructions: instructions,
					Steps:        specs,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("project %d created with %d steps (%dh estimated)\n", p.ID, len(specs), p.EstimatedHours)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&orderID, "order", 0, "order id")
	cmd.Flags().Int64Var(&customerID, "customer", 0, "customer id")
	cmd.Flags().Int64Var(&tailorID, "tailor", 0, "tailor (staff) id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&rush, "rush", false, "rush order")
	cmd.Flags().StringVar(&instructions, "instructions", "", "special instructions")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "step as step_no:template_id:hours[:notes] (repeatable)")
	cmd.Flags().StringVar(&stepsFile, "steps-file", "", "YAML list of steps")
	for _, f := range []string{"order", "customer", "tailor", "deadline"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its steps and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := rt.Engine.GetProject(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				printProjectView(v)
				return nil
			})
		},
	}
	return cmd
}

func projectListCmd() *cobra.Command {
	var status string
	var tailorID int64
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListProjects(ctx, repo.ProjectFilters{
					Status:   status,
					TailorID: tailorID,
					Limit:    limit,
					Offset:   offset,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Order", "Tailor", "Deadline", "Rush", "Status", "Progress", "Est h"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.OrderID, p.TailorID, p.Deadline.Format("2006-01-02"), yesNo(p.Rush), p.Status, fmt.Sprintf("%d%%", p.Progress), p.EstimatedHours})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, in-progress, completed)")
	cmd.Flags().Int64Var(&tailorID, "tailor", 0, "filter by tailor id")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var description, deadline, instructions, stepsFile string
	var rush bool
	var tailorID int64
	var steps []string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields; --step/--steps-file replace the step list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			opts := engine.ProjectUpdateOptions{ID: id, ActorID: viper.GetString("actor-id")}
			flags := cmd.Flags()
			if flags.Changed("description") {
				opts.Description = &description
			}
			if flags.Changed("instructions") {
				opts.Instructions = &instructions
			}
			if flags.Changed("rush") {
				opts.Rush = &rush
			}
			if flags.Changed("tailor") {
				opts.TailorID = &tailorID
			}
			if flags.Changed("deadline") {
				due, err := parseDeadline(deadline)
				if err != nil {
					return err
				}
				opts.Deadline = &due
			}
			if opts.Steps, err = collectSteps(steps, stepsFile); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				applied, err := rt.Engine.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(applied)
				}
				fmt.Printf("project %d updated", id)
				if opts.Steps != nil {
					fmt.Printf(" (steps: %d inserted, %d updated, %d removed)", applied.Inserted, applied.Updated, applied.Removed)
				}
				fmt.Println()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline, YYYY-MM-DD or RFC 3339")
	cmd.Flags().BoolVar(&rush, "rush", false, "rush order")
	cmd.Flags().StringVar(&instructions, "instructions", "", "special instructions")
	cmd.Flags().Int64Var(&tailorID, "tailor", 0, "tailor (staff) id")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "step as step_no:template_id:hours[:notes] (repeatable)")
	cmd.Flags().StringVar(&stepsFile, "steps-file", "", "YAML list of steps")
	return cmd
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export a project to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := rt.Engine.GetProject(ctx, id)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = report.FileName(v, time.Now())
				}
				if err := report.NewExporter(rt.Log).Save(path, v); err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default project-<id>-<date>.xlsx)")
	return cmd
}

func stepCmd() *cobra.Command {
	st := &cobra.Command{Use: "step", Short: "Work on workflow steps"}
	st.AddCommand(stepCompleteCmd())
	st.AddCommand(stepNotesCmd())
	return st
}

func stepCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <step-id>",
		Short: "Complete a step; its predecessor must be completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "step")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.CompleteStep(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
}

func stepNotesCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "notes <step-id>",
		Short: "Replace the notes of a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "step")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.UpdateStepNotes(ctx, id, notes, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("notes of step %d updated\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "new notes (empty clears them)")
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Workflow step templates"}
	tpl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Description"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	return tpl
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened to a project: creation, updates, step completions and notes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Show the latest events of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ProjectEvents(ctx, id, n, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type, e.g. step.completed")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tailorline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "********"
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := app.ResolveConfig(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printProjectView(v domain.ProjectView) {
	fmt.Printf("Project %d: %s\n", v.ID, v.Description)
	fmt.Printf("Customer: %s  Tailor: %s\n", v.Customer.Name, v.Tailor.Name)
	fmt.Printf("Deadline: %s (%d days left)  Rush: %s\n", v.Deadline.Format("2006-01-02"), v.DaysRemaining, yesNo(v.Rush))
	fmt.Printf("Status: %s  Progress: %d%% (%d/%d steps)\n", v.Status, v.Progress, v.StepsCompleted, v.TotalSteps)
	fmt.Printf("Hours: %d estimated, %d actual, %d%% efficiency\n", v.EstimatedHours, v.ActualProjectHours, v.TimeEfficiency)
	if v.Instructions != "" {
		fmt.Printf("Instructions: %s\n", v.Instructions)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Step ID", "No", "Template", "Status", "Est h", "Actual h", "Notes"})
	for _, s := range v.Steps {
		actual := "-"
		if s.ActualHours != nil {
			actual = fmt.Sprint(*s.ActualHours)
		}
		tw.AppendRow(table.Row{s.ID, s.StepNo, s.TemplateTitle, s.Status, s.EstimatedHours, actual, s.Notes})
	}
	tw.Render()
	if len(v.Items) > 0 {
		items := table.NewWriter()
		items.SetOutputMirror(os.Stdout)
		items.AppendHeader(table.Row{"Item", "Garment", "Fabric", "Qty", "Measurements"})
		for _, it := range v.Items {
			var ms []string
			for _, m := range it.Measurements {
				ms = append(ms, fmt.Sprintf("%s %g%s", m.Name, m.Value, m.Unit))
			}
			items.AppendRow(table.Row{it.ID, it.GarmentType, it.Fabric, it.Quantity, strings.Join(ms, ", ")})
		}
		items.Render()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
