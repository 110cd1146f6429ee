package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/parcelops/popsync/pkg/apiclient"
	"github.com/parcelops/popsync/pkg/config"
	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "popsync",
	Short: "popsync - offline-first sync agent for ParcelOps drivers",
	Long: `popsync keeps a courier driver's status updates and proof-of-delivery
submissions safe when connectivity drops. Actions performed offline are
recorded in a durable local queue and replayed against the backend, in
order, as soon as the device is reachable again.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"popsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(podCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(agentCmd)
}

// env assembles the shared collaborators a command needs. Callers must
// Close() it.
type env struct {
	cfg    config.Config
	store  *storage.BoltStore
	client *apiclient.Client
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	client := apiclient.NewClient(cfg.APIBaseURL, store, cfg.HTTPTimeout.Std())
	client.OnSessionExpired(func() {
		fmt.Fprintln(os.Stderr, "Session expired — run 'popsync login' to sign in again.")
	})

	return &env{cfg: cfg, store: store, client: client}, nil
}

// Auth commands
var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the backend and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		if loginEmail == "" {
			return fmt.Errorf("--email is required")
		}
		if loginPassword == "" {
			return fmt.Errorf("--password is required")
		}

		ctx, cancel := commandContext(e.cfg)
		defer cancel()

		if err := e.client.Login(ctx, loginEmail, loginPassword); err != nil {
			return err
		}
		fmt.Println("✓ Logged in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.client.Logout(); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Driver account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Driver account password")
}

// commandContext bounds a one-shot command slightly beyond the HTTP
// timeout so the client's own deadline fires first.
func commandContext(cfg config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.HTTPTimeout.Std()+5*time.Second)
}
