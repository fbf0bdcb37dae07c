package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scansweep/internal/api"
	"scansweep/internal/config"
	"scansweep/internal/domain"
	"scansweep/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "scansweep",
	Short: "Workbench scan maintenance CLI",
	Long: `Scansweep maintains scans on a Workbench server: it finds stale scans and
archives or deletes them through a reviewable two-step plan, waits on running
scans to generate and download reports, imports dependency-analysis results,
and gates CI pipelines on pending identifications and policy violations.

Destructive operations are split in two: 'plan' writes a JSON document of the
scans selected for archiving/deletion, and 'archive'/'delete' execute exactly
that document later. Review the plan file between the two steps; execution
never re-derives eligibility from live state.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// The original toolkit's variable names, kept for drop-in compatibility.
	_ = viper.BindEnv("api-url", "WORKBENCH_URL")
	_ = viper.BindEnv("api-user", "WORKBENCH_USER")
	_ = viper.BindEnv("api-token", "WORKBENCH_TOKEN")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("api-url", "", "Workbench API URL")
	rootCmd.PersistentFlags().String("api-user", "", "Workbench username")
	rootCmd.PersistentFlags().String("api-token", "", "Workbench API token")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "skip confirmation prompts")
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("api-user", rootCmd.PersistentFlags().Lookup("api-user"))
	_ = viper.BindPFlag("api-token", rootCmd.PersistentFlags().Lookup("api-token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(executeCmd("archive", engine.ActionArchive))
	rootCmd.AddCommand(executeCmd("delete", engine.ActionDelete))
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(importDaCmd())
	rootCmd.AddCommand(gateCmd())
	rootCmd.AddCommand(quickScanCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(scansCmd())
}

func planCmd() *cobra.Command {
	var days int
	var output string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write a plan of stale scans to archive or delete",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if !cmd.Flags().Changed("days") {
					days = cfg.Defaults.Days
				}
				if output == "" {
					output = cfg.Defaults.PlanFile
				}
				e.Workers = cfg.Defaults.Workers
				fmt.Printf("Creating plan for scans older than %d days...\n", days)
				plan, err := e.CreatePlan(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				if err := engine.SavePlan(plan, output); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				if plan.TotalScans == 0 {
					fmt.Printf("No scans found older than %d days. Empty plan saved to %s.\n", days, output)
					return nil
				}
				renderPlanTable(plan, 10)
				fmt.Printf("\nPlan %s: %d scans selected.\n", plan.ID, plan.TotalScans)
				fmt.Printf("Review %s, then run 'scansweep archive --input %s' or 'scansweep delete --input %s'.\n", output, output, output)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 365, "scan age in days to consider stale")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output plan file (default from config)")
	return cmd
}

func executeCmd(use string, action engine.Action) *cobra.Command {
	var input string
	short := "Archive scans from a previously created plan"
	warning := "archive"
	if action == engine.ActionDelete {
		short = "Permanently delete scans from a previously created plan"
		warning = "PERMANENTLY DELETE"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if input == "" {
					input = cfg.Defaults.PlanFile
				}
				plan, err := engine.LoadPlan(input)
				if err != nil {
					return err
				}
				if plan.TotalScans == 0 {
					fmt.Println("Plan is empty; nothing to do.")
					return nil
				}
				renderPlanTable(plan, 10)
				fmt.Printf("\nWARNING: this will %s %d scans.\n", warning, plan.TotalScans)
				if action == engine.ActionDelete {
					fmt.Println("Unlike archiving, deleted scans cannot be recovered.")
				}
				if !confirm(fmt.Sprintf("Proceed with %s?", use)) {
					fmt.Println("Operation cancelled.")
					return nil
				}
				sum, execErr := e.ExecutePlan(ctx, plan, action)
				renderSummary(sum)
				if execErr != nil {
					return fmt.Errorf("execution interrupted: %w", execErr)
				}
				if !sum.OK() {
					return fmt.Errorf("%d of %d scans failed", sum.Failed, plan.TotalScans)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input plan file (default from config)")
	return cmd
}

func reportCmd() *cobra.Command {
	var scanCode, reportType, outputDir string
	var checkInterval, maxWait int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Wait for a scan to finish, then generate and download reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if !cmd.Flags().Changed("check-interval") {
					checkInterval = cfg.Defaults.CheckInterval
				}
				if outputDir == "" {
					outputDir = cfg.Defaults.OutputDir
				}
				e.Poll.Interval = time.Duration(checkInterval) * time.Second
				e.Poll.MaxWait = time.Duration(maxWait) * time.Minute
				paths, err := e.DownloadReports(ctx, scanCode, reportType, outputDir)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"scan_code": scanCode, "reports": paths})
				}
				fmt.Printf("Downloaded %d report(s).\n", len(paths))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scanCode, "scan-code", "", "scan code to report on")
	cmd.Flags().StringVar(&reportType, "report-type", "ALL", "report type to generate")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for downloaded reports")
	cmd.Flags().IntVar(&checkInterval, "check-interval", 30, "seconds between status checks")
	cmd.Flags().IntVar(&maxWait, "max-wait", 60, "minutes to wait before giving up")
	_ = cmd.MarkFlagRequired("scan-code")
	return cmd
}

func importDaCmd() *cobra.Command {
	var scanCode, file string
	var waitTime, maxTries int
	cmd := &cobra.Command{
		Use:   "import-da",
		Short: "Import dependency analysis results into a scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(file); err != nil {
				return fmt.Errorf("analyzer result file: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				e.Poll.Interval = time.Duration(waitTime) * time.Second
				e.Poll.MaxWait = 0
				e.Poll.MaxTries = maxTries
				return e.ImportDependencyResults(ctx, scanCode, file)
			})
		},
	}
	cmd.Flags().StringVar(&scanCode, "scan-code", "", "scan code to import into")
	cmd.Flags().StringVar(&file, "file", "", "path to analyzer-result.json")
	cmd.Flags().IntVar(&waitTime, "wait-time", 2, "seconds between status checks")
	cmd.Flags().IntVar(&maxTries, "max-tries", 60, "status checks before giving up")
	_ = cmd.MarkFlagRequired("scan-code")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func gateCmd() *cobra.Command {
	var scanCode string
	var checkInterval int
	var showFiles, policyCheck bool
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Fail if a finished scan has pending IDs or policy violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if !cmd.Flags().Changed("check-interval") {
					checkInterval = cfg.Defaults.CheckInterval
				}
				e.Poll.Interval = time.Duration(checkInterval) * time.Second
				result, err := e.Gate(ctx, scanCode, policyCheck)
				if err != nil {
					return err
				}
				fmt.Printf("Scan: %s\n", result.ScanURL)
				if len(result.PendingFiles) > 0 {
					fmt.Printf("%d files have pending identifications.\n", len(result.PendingFiles))
					if showFiles {
						for _, name := range result.PendingFiles {
							fmt.Printf("  %s\n", name)
						}
					}
					fmt.Printf("Review them here: %s\n", result.PendingLink)
				} else {
					fmt.Println("No files have pending identifications.")
				}
				for _, w := range result.PolicyWarnings {
					if w.LicenseID != "" {
						fmt.Printf("License violation: %s - %s files\n", w.LicenseInfo.Identifier, w.Findings)
					} else {
						fmt.Printf("Category violation: %s - %s files\n", w.LicenseCategory, w.Findings)
					}
				}
				if len(result.PolicyWarnings) > 0 {
					fmt.Printf("Review files with warnings here: %s\n", result.PolicyLink)
				}
				if !result.Clean() {
					return fmt.Errorf("scan %s has unresolved findings", scanCode)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scanCode, "scan-code", "", "scan code to gate on")
	cmd.Flags().IntVar(&checkInterval, "check-interval", 30, "seconds between status checks")
	cmd.Flags().BoolVar(&showFiles, "show-files", false, "list the files pending identification")
	cmd.Flags().BoolVar(&policyCheck, "policy-check", false, "also check for policy violations")
	_ = cmd.MarkFlagRequired("scan-code")
	return cmd
}

func quickScanCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "quick-scan <file>",
		Short: "Match a single file against the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				matches, err := e.QuickScan(ctx, args[0])
				if err != nil {
					return err
				}
				if len(matches) == 0 {
					fmt.Println("No matches found.")
					return nil
				}
				for _, m := range matches {
					if raw || viper.GetBool("json") {
						var pretty map[string]any
						if err := json.Unmarshal(m.Raw, &pretty); err == nil {
							if err := printJSON(pretty); err != nil {
								return err
							}
							continue
						}
						fmt.Println(string(m.Raw))
						continue
					}
					fmt.Println(engine.FormatMatch(m, e.QuickViewLink()))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw match JSON")
	return cmd
}

func policyCmd() *cobra.Command {
	var projectCode, output string
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Fetch a project's license policy document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				body, err := e.API.ProjectPolicy(ctx, projectCode)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, body, 0o644); err != nil {
					return err
				}
				fmt.Printf("License policy for %s saved to %s\n", projectCode, output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectCode, "project-code", "", "project code")
	cmd.Flags().StringVar(&output, "output", ".fossidpolicy", "output file")
	_ = cmd.MarkFlagRequired("project-code")
	return cmd
}

func scansCmd() *cobra.Command {
	scans := &cobra.Command{Use: "scans", Short: "Inspect and manage individual scans"}
	scans.AddCommand(scansListCmd())
	scans.AddCommand(scansRmCmd())
	return scans
}

func scansListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				scans, err := e.ListScans(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(scans)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "CODE", "NAME"})
				for _, s := range scans {
					t.AppendRow(table.Row{s.ID, s.Code, s.Name})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func scansRmCmd() *cobra.Command {
	var scanCode string
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Permanently delete one scan by code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				if !confirm(fmt.Sprintf("Permanently delete scan %s?", scanCode)) {
					fmt.Println("Operation cancelled.")
					return nil
				}
				if err := e.API.DeleteScan(ctx, scanCode); err != nil {
					return err
				}
				fmt.Printf("Deleted scan %s\n", scanCode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scanCode, "scan-code", "", "scan code to delete")
	_ = cmd.MarkFlagRequired("scan-code")
	return cmd
}

// --- helpers ---

// withEngine resolves configuration and credentials, verifies the connection,
// and hands a ready engine to fn. Credentials are validated before any other
// network call so an auth problem aborts up front.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, *config.Config) error) error {
	cfg, err := config.LoadOptional(".")
	if err != nil {
		return err
	}
	creds := config.Credentials{
		URL:   firstNonEmpty(viper.GetString("api-url"), cfg.API.URL),
		User:  firstNonEmpty(viper.GetString("api-user"), cfg.API.User),
		Token: firstNonEmpty(viper.GetString("api-token"), cfg.API.Token),
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	client := api.New(creds.URL, creds.User, creds.Token)
	info, err := client.ServerConfig(ctx)
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	fmt.Printf("Connected to %s (Workbench %s)\n", orUnknown(info.ServerName), orUnknown(info.Version))
	return fn(ctx, engine.New(client), cfg)
}

func renderPlanTable(plan domain.Plan, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"PROJECT", "SCAN NAME", "SCAN CODE", "AGE (DAYS)", "LAST MODIFIED"})
	for i, e := range plan.Scans {
		if limit > 0 && i >= limit {
			t.AppendFooter(table.Row{"", fmt.Sprintf("... and %d more", plan.TotalScans-limit), "", "", ""})
			break
		}
		t.AppendRow(table.Row{e.ProjectName, e.ScanName, e.ScanCode, e.AgeDays, e.LastModified.Format("2006-01-02")})
	}
	t.Render()
}

func renderSummary(sum domain.Summary) {
	if viper.GetBool("json") {
		_ = printJSON(sum)
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"SCAN CODE", "SCAN NAME", "OUTCOME", "REASON"})
	for _, o := range sum.Outcomes {
		t.AppendRow(table.Row{o.ScanCode, o.ScanName, o.Status, o.Reason})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d ok / %d skipped", sum.Succeeded, sum.Skipped), fmt.Sprintf("%d failed", sum.Failed)})
	t.Render()
}

func confirm(prompt string) bool {
	if viper.GetBool("yes") {
		return true
	}
	fmt.Printf("%s (y/n): ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
