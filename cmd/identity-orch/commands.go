package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/hochfrequenz/identity-orchestrator/internal/config"
	"github.com/hochfrequenz/identity-orchestrator/internal/domain"
	"github.com/hochfrequenz/identity-orchestrator/internal/identitystore"
	"github.com/hochfrequenz/identity-orchestrator/internal/importer"
	"github.com/hochfrequenz/identity-orchestrator/internal/metrics"
	"github.com/hochfrequenz/identity-orchestrator/internal/notify"
	"github.com/hochfrequenz/identity-orchestrator/internal/orchestrator"
	"github.com/spf13/cobra"
)

var importReplace bool

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stored identity in batches",
		RunE:  runAll,
	}
	rootCmd.AddCommand(runCmd)

	// run-one command
	runOneCmd := &cobra.Command{
		Use:   "run-one NAME",
		Short: "Run a single identity",
		Args:  cobra.ExactArgs(1),
		RunE:  runOne,
	}
	rootCmd.AddCommand(runOneCmd)

	// import command
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import identities from an .xlsx or .yaml file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "replace the stored identities instead of appending")
	rootCmd.AddCommand(importCmd)

	// export command
	exportCmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export identities to an .xlsx file that can be imported again",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	rootCmd.AddCommand(exportCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored identities",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	// delete command
	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an identity and its browser profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	rootCmd.AddCommand(deleteCmd)

	// open command
	openCmd := &cobra.Command{
		Use:   "open NAME",
		Short: "Open a manual browser session for an identity until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}
	rootCmd.AddCommand(openCmd)
}

func resolveConfigPath() string {
	if configPath == "" {
		return config.DefaultConfigPath()
	}
	return configPath
}

// loadConfig reads the config file and the environment overlay without validating,
// so commands that never start a run work on a partial configuration
func loadConfig() (*config.Config, *config.FileStore, error) {
	store := config.NewFileStore(resolveConfigPath())
	cfg, err := config.Load(store.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(store.EnvFile); err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// app bundles the orchestrator with the resources it owns
type app struct {
	orch  *orchestrator.Orchestrator
	db    *identitystore.Store
	cfg   *config.Config
	files *config.FileStore
}

func openApp() (*app, error) {
	cfg, files, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := identitystore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Config:       cfg,
		ConfigSource: files,
		Store:        db,
		Notifier:     notify.FromConfig(cfg.Notifications),
		Metrics:      metrics.New(),
		Log:          logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{orch: orch, db: db, cfg: cfg, files: files}, nil
}

func (a *app) Close() {
	a.orch.Close()
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing database: %v\n", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runAll(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		a.orch.Stop()
	}()

	result, err := a.orch.RunAll(ctx)
	if err != nil {
		return err
	}
	printRunResult(cmd.OutOrStdout(), result)
	return nil
}

func runOne(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	outcome, err := a.orch.RunSingle(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
	if !outcome.IsSuccess() {
		return fmt.Errorf("%s failed: %s", args[0], outcome.Reason())
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	imported, err := a.orch.Import(args[0], importReplace)
	if err != nil {
		return err
	}
	verb := "Appended"
	if importReplace {
		verb = "Imported"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d identities from %s\n", verb, len(imported), args[0])
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.orch.Identities()
	if err != nil {
		return err
	}
	if err := importer.WriteXLSX(args[0], identities); err != nil {
		return fmt.Errorf("export %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d identities to %s\n", len(identities), args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.orch.Identities()
	if err != nil {
		return err
	}
	printIdentities(cmd.OutOrStdout(), identities)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.DeleteIdentity(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := a.orch.OpenIdentitySession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session for %s is open. Press Ctrl+C to close it.\n", args[0])
	<-ctx.Done()

	return a.orch.CloseIdentitySession(args[0])
}

func printIdentities(w io.Writer, identities []domain.Identity) {
	if len(identities) == 0 {
		fmt.Fprintln(w, "No identities stored")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUSERNAME\tSTATUS\t2FA\tRESULT")
	for _, id := range identities {
		twofa := "-"
		if id.HasTwoFactor() {
			twofa = "yes"
		}
		result := id.Result
		if result == "" {
			result = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id.Name, id.Username, id.Status, twofa, result)
	}
	tw.Flush()
}

func printRunResult(w io.Writer, result domain.RunResult) {
	fmt.Fprintf(w, "Run %s: %d/%d identities succeeded in %d batches\n",
		result.RunID, result.Successful, result.Total, result.Batches)
	if result.Stopped {
		fmt.Fprintf(w, "Stopped early, %d identities not started\n", result.Skipped())
	}

	names := make([]string, 0, len(result.Outcomes))
	for name, outcome := range result.Outcomes {
		if !outcome.IsSuccess() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, result.Outcomes[name])
	}
}
