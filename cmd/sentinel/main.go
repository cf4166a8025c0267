package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"sentinel-go/internal/app"
	"sentinel-go/internal/config"
	"sentinel-go/internal/sentinel"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Restore").
func newApp(operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return cfg, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

// resolvePassphrase returns the --passphrase flag value, prompting when the
// flag is unset.
func resolvePassphrase(cmd *cobra.Command) (string, error) {
	pass, _ := cmd.Flags().GetString("passphrase")
	if pass != "" {
		return pass, nil
	}
	return promptPassphrase("Passphrase: ")
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Malware scanner and quarantine manager",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:        %s\n", cfg.HostID)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Quarantine Dir: %s\n", cfg.QuarantineDir)
		fmt.Printf("Signatures:     %s\n", cfg.Signatures.Path)
		fmt.Printf("Heuristics:     %t\n", cfg.HeuristicsEnabled())
		fmt.Printf("Restore:        %t\n", cfg.Restore.Enabled)
		fmt.Printf("Encryption:     %s\n", cfg.Encryption.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the at-rest encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := promptPassphrase("Choose a passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [PATH]",
	Short: "Scan files and quarantine detections",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp("Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		target := "."
		if len(args) > 0 {
			target = args[0]
		}

		sum, err := a.Scan(context.Background(), target, recursive)
		if sum != nil {
			fmt.Printf("Scanned: %d  Infected: %d  Errors: %d\n", sum.Scanned, sum.Infected, sum.Errors)
		}
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		return nil
	},
}

// quarantine command
var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Manage quarantined files",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.List()
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No files in quarantine.")
			return nil
		}

		for _, r := range records {
			enc := ""
			if r.Encrypted {
				enc = "  [encrypted]"
			}
			fmt.Printf("%s  %s  %-30s  %s%s\n",
				r.ID,
				r.QuarantinedAt.Format("2006-01-02 15:04:05"),
				r.FileName,
				r.Reason,
				enc,
			)
		}
		return nil
	},
}

var quarantineRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a quarantined file to its original location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := passphraseIfEncrypted(cmd, a, args[0])
		if err != nil {
			return err
		}

		dest, err := a.Restore(context.Background(), args[0], pass)
		if err != nil {
			if errors.Is(err, sentinel.ErrRestoreUnsupported) {
				return fmt.Errorf("restore is disabled on this installation; use export instead")
			}
			return fmt.Errorf("restore: %w", err)
		}

		fmt.Printf("Restored to %s\n", dest)
		return nil
	},
}

var quarantineDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Permanently delete a quarantined file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		fmt.Println("Deleted.")
		return nil
	},
}

var quarantineExportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a quarantined file to the configured destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := passphraseIfEncrypted(cmd, a, args[0])
		if err != nil {
			return err
		}

		location, err := a.Export(context.Background(), args[0], pass)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		fmt.Printf("Exported to %s\n", location)
		return nil
	},
}

var quarantineMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite legacy stored-name references",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MigrateRecords")
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.MigrateRecords()
		if err != nil {
			return fmt.Errorf("migrating records: %w", err)
		}

		fmt.Printf("Migrated %d record(s)\n", count)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No scan operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-10s  scanned:%d infected:%d errors:%d  %s\n",
				op.ID,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				op.Scanned,
				op.Infected,
				op.Errors,
				duration,
			)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the quarantine index database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if err := app.MigrateDatabase(cfg); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent snapshot of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupDatabase")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDatabase(args[0]); err != nil {
			return fmt.Errorf("backing up database: %w", err)
		}

		fmt.Printf("Database backed up to %s\n", args[0])
		return nil
	},
}

// passphraseIfEncrypted resolves a passphrase only when the record actually
// needs one, so plaintext records never trigger a prompt.
func passphraseIfEncrypted(cmd *cobra.Command, a *app.App, id string) (string, error) {
	records, err := a.List()
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.ID == id && r.Encrypted {
			return resolvePassphrase(cmd)
		}
	}
	return "", nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// quarantine subcommands
	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineRestoreCmd)
	quarantineRestoreCmd.Flags().String("passphrase", "", "Passphrase for encrypted records")
	quarantineCmd.AddCommand(quarantineDeleteCmd)
	quarantineCmd.AddCommand(quarantineExportCmd)
	quarantineExportCmd.Flags().String("passphrase", "", "Passphrase for encrypted records")
	quarantineCmd.AddCommand(quarantineMigrateCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(dbCmd)
}
