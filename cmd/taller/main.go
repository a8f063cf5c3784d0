// Command taller is the repair-shop workflow tool: local-first order
// tracking with snapshot sync against a hosted backup store.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reparalab/taller/internal/remote"
	"github.com/reparalab/taller/internal/store"
	tsync "github.com/reparalab/taller/internal/sync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taller",
	Short: "Repair-shop order tracking with offline-first sync",
	Long: `taller manages a repair shop's clients, equipment, and repair orders
in a local SQLite database, and keeps that database reconciled with a
hosted snapshot store so several devices can share one dataset.

Configuration is read from ~/.taller.yaml (override with --config) and
TALLER_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taller.yaml)")
	rootCmd.PersistentFlags().String("db", "", "path to the local database (default ~/.taller/taller.db)")
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".taller")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("TALLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("remote.table", "backups")
	viper.SetDefault("sync.pull_interval", 90*time.Second)
	viper.SetDefault("sync.debounce", 2*time.Second)
	viper.SetDefault("sync.tolerance", 5*time.Second)
	viper.SetDefault("dashboard.port", 8571)

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; env and flags still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// dataDir returns the taller state directory, creating it if needed.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".taller")
}

// dbPath resolves the local database location.
func dbPath() string {
	if p := viper.GetString("db_path"); p != "" {
		return p
	}
	return filepath.Join(dataDir(), "taller.db")
}

// openStore opens the local store and ensures the schema exists.
func openStore() (*store.Store, error) {
	st, err := store.Open(dbPath())
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newRemote builds the snapshot store client from configuration.
func newRemote() (*remote.Client, error) {
	url := viper.GetString("remote.url")
	if url == "" {
		return nil, fmt.Errorf("remote.url is not configured (set it in ~/.taller.yaml or TALLER_REMOTE_URL)")
	}
	return remote.NewClient(remote.Config{
		BaseURL: url,
		APIKey:  viper.GetString("remote.api_key"),
		Table:   viper.GetString("remote.table"),
	})
}

// syncPolicy builds the reconciler policy from configuration.
func syncPolicy() tsync.Policy {
	return tsync.Policy{ClockSkewTolerance: viper.GetDuration("sync.tolerance")}
}

// schedulerConfig builds the scheduler timing from configuration.
func schedulerConfig() tsync.SchedulerConfig {
	return tsync.SchedulerConfig{
		PullInterval:     viper.GetDuration("sync.pull_interval"),
		DebounceInterval: viper.GetDuration("sync.debounce"),
	}
}
