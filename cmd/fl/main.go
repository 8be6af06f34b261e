package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleetline/internal/app"
	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fleetline CLI",
	Long: `Fleetline tracks fleet assets and their compliance obligations.
Core concepts:
- Workspace: your .fleetline directory with only the database; configs are stored in the DB and imported explicitly.
- Fleet: the group of assets (vehicles, equipment, power tools, lifting accessories) managed together.
- Documents: registrations, insurance and permits with expiry dates; expiry severity is always derived from today.
- Inspections: daily or monthly checklists per asset category; required items must be answered before a submission is accepted.
- Maintenance and defects: open obligations that drag an asset's compliance score down until resolved.
- Compliance: a weighted per-asset score over documents, inspections, maintenance and defects, recomputed on demand.
- Event log: diary of changes, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLEETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("fleet", "", "fleet id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("fleet", rootCmd.PersistentFlags().Lookup("fleet"))
}

func registerCommands() {
	rootCmd.AddCommand(fleetCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(maintCmd())
	rootCmd.AddCommand(defectCmd())
	rootCmd.AddCommand(complianceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func fleetCmd() *cobra.Command {
	fleet := &cobra.Command{Use: "fleet", Short: "Manage fleets"}
	fleet.AddCommand(fleetCreateCmd())
	fleet.AddCommand(fleetListCmd())
	fleet.AddCommand(fleetShowCmd())
	fleet.AddCommand(fleetUseCmd())
	return fleet
}

func fleetCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			f, err := e.InitFleet(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(f)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "fleet id")
	cmd.Flags().StringVar(&name, "name", "", "fleet name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func fleetListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fleets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListFleets(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func fleetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetFleet(ctx, e.Config.Fleet.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	return cmd
}

func fleetUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current fleet for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fleetID := strings.TrimSpace(args[0])
			if fleetID == "" {
				return fmt.Errorf("fleet id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "FLEETLINE_FLEET", fleetID); err != nil {
				return err
			}
			fmt.Printf("Set FLEETLINE_FLEET=%s in %s/.env\n", fleetID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect fleet config",
		Long:  "Config is the rulebook (stored in DB): fleet id, checklist templates per asset category, scoring weights and penalties, and RBAC roles. Import from fleetline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configGenerateCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configGenerateCmd() *cobra.Command {
	var fleetID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a default fleetline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(fleetID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetID, "fleet-id", "default", "fleet id for the generated config")
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import fleet config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			fleetID := cfg.Fleet.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if fleetID == "" {
					fleetID = e.Config.Fleet.ID
				}
				if err := e.Repo.UpsertFleetConfig(ctx, fleetID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet status",
		Long:  "See the scoreboard for your fleet: asset counts by operational status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetFleet(ctx, e.Config.Fleet.ID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountAssetsByStatus(ctx, f.ID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"fleet_id":     f.ID,
					"status":       f.Status,
					"asset_counts": counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Fleet: %s (%s)\n", f.ID, f.Status)
				fmt.Println("Assets:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	asset := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
		Long:  "Assets are the things you inspect and maintain: vehicles, equipment, power tools and lifting accessories. Operational status flows active <-> maintenance and ends at decommissioned.",
	}
	asset.AddCommand(assetAddCmd())
	asset.AddCommand(assetListCmd())
	asset.AddCommand(assetShowCmd())
	asset.AddCommand(assetStatusCmd())
	asset.AddCommand(assetScheduleCmd())
	asset.AddCommand(assetDeleteCmd())
	return asset
}

func assetAddCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.FleetID == "" {
					opts.FleetID = e.Config.Fleet.ID
				}
				a, err := e.RegisterAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "asset id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.FleetID, "fleet", "", "fleet id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "asset name")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (vehicle, equipment, power_tool, lifting_accessory)")
	cmd.Flags().StringVar(&opts.NextInspectionDate, "next-inspection", "", "next inspection date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.FleetID == "" {
					f.FleetID = e.Config.Fleet.ID
				}
				assets, err := e.Repo.ListAssets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Status", "Next Inspection"})
				for _, a := range assets {
					next := ""
					if a.NextInspectionDate != nil {
						next = *a.NextInspectionDate
					}
					tw.AppendRow(table.Row{a.ID, a.Name, a.Category, a.Status, next})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.FleetID, "fleet", "", "fleet id")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func assetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAsset(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change operational status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetAssetStatus(ctx, id, status, viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (active, maintenance, decommissioned)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func assetScheduleCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Set next inspection date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ScheduleInspection(ctx, id, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, empty clears)")
	return cmd
}

func assetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAsset(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func docCmd() *cobra.Command {
	doc := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents",
		Long:  "Documents are registrations, insurance, permits and certificates. Expiry severity (valid, warning, urgent, expired) is derived from the expiry date every time it is read.",
	}
	doc.AddCommand(docAddCmd())
	doc.AddCommand(docListCmd())
	doc.AddCommand(docStatusCmd())
	return doc
}

func docAddCmd() *cobra.Command {
	var opts engine.DocumentCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach a document to an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AddDocument(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "document id (optional)")
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&opts.Type, "type", "", "document type (insurance, registration, permit, ...)")
	cmd.Flags().StringVar(&opts.IssueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ExpiryDate, "expiry-date", "", "expiry date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func docListCmd() *cobra.Command {
	var assetID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents for an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				docs, err := e.Repo.ListDocuments(ctx, assetID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Expiry", "Severity"})
				for _, d := range docs {
					expiry := ""
					if d.ExpiryDate != nil {
						expiry = *d.ExpiryDate
					}
					tw.AppendRow(table.Row{d.ID, d.Type, d.Status, expiry, engine.DocumentExpiryStatus(d, now)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset id")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func docStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change document status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.SetDocumentStatus(ctx, id, status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (verified, pending, rejected)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func inspectCmd() *cobra.Command {
	insp := &cobra.Command{
		Use:   "inspect",
		Short: "Manage inspections",
		Long:  "Inspections answer the checklist for an asset's category. Every required item needs an answer (passed or failed); one submission per asset, day and kind.",
	}
	insp.AddCommand(inspectSubmitCmd())
	insp.AddCommand(inspectListCmd())
	return insp
}

func inspectSubmitCmd() *cobra.Command {
	var assetID, kind, notes string
	var passed, failed []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an inspection",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := map[string]domain.ItemStatus{}
			for _, id := range passed {
				results[id] = domain.ItemPassed
			}
			for _, id := range failed {
				results[id] = domain.ItemFailed
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.SubmitInspection(ctx, engine.InspectionSubmitOptions{
					AssetID: assetID,
					Kind:    kind,
					Results: results,
					Notes:   notes,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&kind, "kind", "daily", "inspection kind (daily, monthly)")
	cmd.Flags().StringArrayVar(&passed, "pass", []string{}, "item id that passed (repeatable)")
	cmd.Flags().StringArrayVar(&failed, "fail", []string{}, "item id that failed (repeatable)")
	cmd.Flags().StringVar(&notes, "notes", "", "inspection notes")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func inspectListCmd() *cobra.Command {
	var f repo.InspectionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInspections(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Asset", "Kind", "Date", "By", "Items"})
				for _, insp := range items {
					tw.AppendRow(table.Row{insp.ID, insp.AssetID, insp.Kind, insp.Date, insp.SubmittedBy, len(insp.Items)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AssetID, "asset", "", "asset id filter")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	return cmd
}

func maintCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "maint",
		Short: "Manage maintenance tasks",
	}
	m.AddCommand(maintAddCmd())
	m.AddCommand(maintDoneCmd())
	m.AddCommand(maintListCmd())
	return m
}

func maintAddCmd() *cobra.Command {
	var opts engine.MaintenanceCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ScheduleMaintenance(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.DueDate, "due-date", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func maintDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete maintenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteMaintenance(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func maintListCmd() *cobra.Command {
	var assetID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List maintenance tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMaintenance(ctx, assetID, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset id filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, completed)")
	return cmd
}

func defectCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "defect",
		Short: "Manage defects",
	}
	d.AddCommand(defectOpenCmd())
	d.AddCommand(defectCloseCmd())
	d.AddCommand(defectListCmd())
	return d
}

func defectOpenCmd() *cobra.Command {
	var opts engine.DefectCreateOptions
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a defect",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.OpenDefect(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "defect id (optional)")
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.InspectionID, "inspection", "", "originating inspection id")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func defectCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a defect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CloseDefect(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func defectListCmd() *cobra.Command {
	var assetID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDefects(ctx, assetID, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&assetID, "asset", "", "asset id filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, closed)")
	return cmd
}

func complianceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compliance <asset-id>",
		Short: "Compute an asset's compliance metric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				metric, err := e.ComplianceFor(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(metric)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Component", "Score"})
				tw.AppendRow(table.Row{"documents", metric.DocumentScore})
				tw.AppendRow(table.Row{"inspections", metric.InspectionScore})
				tw.AppendRow(table.Row{"maintenance", metric.MaintenanceScore})
				tw.AppendRow(table.Row{"defects", metric.DefectScore})
				tw.AppendFooter(table.Row{"overall", metric.OverallScore})
				tw.Render()
				fmt.Printf("Expiry status: %s\n", metric.ExpiryStatus)
				if metric.NextDueDate != nil && metric.NextDueItem != nil {
					fmt.Printf("Next due: %s (%s %s)\n", *metric.NextDueDate, metric.NextDueItem.Kind, metric.NextDueItem.ID)
				}
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: registrations, status changes, inspections, alerts and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Fleet.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(rbacBootstrapCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				who, err := e.WhoAmI(ctx, e.Config.Fleet.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, e.Config.Fleet.ID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, e.Config.Fleet.ID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacBootstrapCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap an actor role without RBAC checks (dev only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			fleetID := strings.TrimSpace(viper.GetString("fleet"))
			if fleetID == "" {
				return fmt.Errorf("fleet not specified; use --fleet or set FLEETLINE_FLEET (fl fleet use <id>)")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetFleet(ctx, fleetID); err != nil {
					return err
				}
				cfg, cfgErr := r.GetFleetConfig(ctx, fleetID)
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if cfgErr == nil && cfg != nil {
					if roleDef, ok := cfg.RBAC.Roles[role]; ok {
						if err := r.InsertRole(ctx, tx, role, roleDef.Description); err != nil {
							return err
						}
						for _, perm := range roleDef.Permissions {
							if err := r.InsertPermission(ctx, tx, perm); err != nil {
								return err
							}
							if err := r.AddRolePermission(ctx, tx, role, perm); err != nil {
								return err
							}
						}
					} else {
						if err := r.InsertRole(ctx, tx, role, ""); err != nil {
							return err
						}
					}
				} else {
					if err := r.InsertRole(ctx, tx, role, ""); err != nil {
						return err
					}
				}
				if err := r.EnsureActor(ctx, tx, target, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if err := r.AssignRole(ctx, tx, fleetID, target, role); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plaintext, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				out := map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plaintext}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("API key %s created. Store the secret now, it is not shown again:\n%s\n", key.ID, plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveFleetAndConfig(cmd.Context(), workspace, viper.GetString("fleet"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("FLEETLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FLEETLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fleetline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveFleetAndConfig(ctx, workspace, viper.GetString("fleet"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
