package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zynqcloud/photo-storage/internal/baseurl"
	"github.com/zynqcloud/photo-storage/internal/cleanup"
	"github.com/zynqcloud/photo-storage/internal/config"
	"github.com/zynqcloud/photo-storage/internal/store"
)

func main() {
	cobra.CheckErr(newRootCommand().Execute())
}

// app carries what every subcommand needs once flags have been parsed.
type app struct {
	v          *viper.Viper
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "photo-storage",
		Short:         "Local filesystem photo store",
		SilenceErrors: false,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Path to a config file. Defaults to photo-storage.yaml in . or /etc/photo-storage.")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging.")
	addStorageFlags(pf)
	if err := bindFlags(a.v, pf, storageFlagKeys); err != nil {
		panic(err)
	}

	f := rootCmd.Flags()
	addServerFlags(f)
	if err := bindFlags(a.v, f, serverFlagKeys); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(buildURLCmd(a))
	rootCmd.AddCommand(buildCleanupCmd(a))
	return rootCmd
}

var storageFlagKeys = map[string]string{
	"project-root": "storage.project_root",
	"save-path":    "storage.save_path",
	"base-url":     "storage.base_url",
	"spool-dir":    "storage.spool_dir",
}

var serverFlagKeys = map[string]string{
	"port":            "server.port",
	"trust-forwarded": "server.trust_forwarded",
	"serve-public":    "server.serve_public",
}

func addStorageFlags(fs *pflag.FlagSet) {
	fs.String("project-root", "/data", "Absolute directory the store is rooted at.")
	fs.String("save-path", "photos", "Subdirectory of the project root that holds photos.")
	fs.String("base-url", "", "Public base URL for photo links. Empty derives it from each request.")
	fs.String("spool-dir", "", "Directory upload bodies are staged in.")
}

func addServerFlags(fs *pflag.FlagSet) {
	fs.String("port", "5000", "TCP port to listen on.")
	fs.Bool("trust-forwarded", false, "Honour X-Forwarded-Proto and X-Forwarded-Host when deriving base URLs.")
	fs.Bool("serve-public", true, "Serve the save directory read-only without a token.")
}

// bindFlags maps each flag onto its viper key, so a flag set on the command
// line wins over the environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) init() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// libLogger returns a logr view of the daemon's slog logger for library packages.
func (a *app) libLogger(name string) logr.Logger {
	return logr.FromSlogHandler(a.logger.Handler()).WithName(name)
}

// baseURL picks the provider from configuration: a fixed URL when one is
// set, otherwise the URL of the request being served.
func (a *app) baseURL() store.BaseURLProvider {
	if a.cfg.Storage.BaseURL != "" {
		return baseurl.Static(a.cfg.Storage.BaseURL)
	}
	return baseurl.Request{TrustForwarded: a.cfg.Server.TrustForwarded}
}

func (a *app) openStore() (*store.Local, error) {
	st, err := store.NewLocal(
		a.cfg.Storage.ProjectRoot,
		a.cfg.Storage.SavePath,
		a.baseURL(),
		store.WithLogger(a.libLogger("store")),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise store: %w", err)
	}
	return st, nil
}

func buildURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "url REF...",
		Short: "Print the public URL of each photo reference",
		Long: "Print the public URL of each photo reference. Requires --base-url " +
			"(or storage.base_url) since there is no request to derive it from.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Storage.BaseURL == "" {
				return errors.New("url: storage.base_url is not set")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			for _, ref := range args {
				u, err := st.PhotoURL(cmd.Context(), ref)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

func buildCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale upload spools once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			n := cleanup.Spool(st.Fs(), a.cfg.Storage.Spool(), a.cfg.Cleanup.TTL, a.libLogger("cleanup"))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale spool(s)\n", n)
			return nil
		},
	}
}
