package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/metarender/pkg/buildinfo"
	"github.com/matzehuels/metarender/pkg/cache"
	"github.com/matzehuels/metarender/pkg/channel"
	"github.com/matzehuels/metarender/pkg/config"
	"github.com/matzehuels/metarender/pkg/namespace"
	"github.com/matzehuels/metarender/pkg/observability"
	"github.com/matzehuels/metarender/pkg/pipeline"
	"github.com/matzehuels/metarender/pkg/variant"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "metarender"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Env is the process environment, captured once.
	Env namespace.Env

	configPath   string
	noCache      bool
	cacheBackend string
	cacheURL     string
	channels     []string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:       newLogger(w, level),
		Env:          namespace.EnvFromOS(),
		cacheBackend: cache.BackendFile,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Metarender renders conda recipes into package metadata",
		Long: `Metarender evaluates meta.yaml recipes for every variant: selectors,
templates and multiple outputs, then finalizes pinned dependencies and
prints the package index records a build would produce.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			hooks := observability.NewLogHooks(c.Logger)
			observability.SetRenderHooks(hooks)
			observability.SetCacheHooks(hooks)
			observability.SetServerHooks(hooks)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the render cache")
	flags.StringVar(&c.cacheBackend, "cache-backend", c.cacheBackend, "cache backend: file, redis, mongo, none")
	flags.StringVar(&c.cacheURL, "cache-url", "", "cache directory (file) or connection URL (redis, mongo)")
	flags.StringArrayVar(&c.channels, "channel", nil, "channel URL whose index extends the available packages (repeatable)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.outputsCommand())
	root.AddCommand(c.hashCommand())
	root.AddCommand(c.selectCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context) (*pipeline.Runner, error) {
	store, err := c.openCache(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(store, nil, c.Logger), nil
}

func (c *CLI) openCache(ctx context.Context) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	url := c.cacheURL
	if c.cacheBackend == cache.BackendFile || c.cacheBackend == "" {
		if url == "" {
			dir, err := cache.DefaultDir()
			if err != nil {
				c.Logger.Warn("no cache directory, caching disabled", "err", err)
				return cache.NewNullCache(), nil
			}
			url = dir
		}
	}
	store, err := cache.Open(ctx, c.cacheBackend, url)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", c.cacheBackend, err)
	}
	return store, nil
}

// loadConfig reads --config, or returns the defaults, and merges the
// index of every --channel into the available packages.
func (c *CLI) loadConfig(ctx context.Context) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return cfg, err
		}
	}
	if len(c.channels) == 0 {
		return cfg, nil
	}

	store, err := c.openCache(ctx)
	if err != nil {
		return cfg, err
	}
	defer store.Close()

	clients := make([]*channel.Client, len(c.channels))
	for i, url := range c.channels {
		clients[i] = channel.NewClient(url, store, channel.TTLRepodata)
	}
	avail, err := channel.Available(ctx, clients, channelSubdirs(cfg), false)
	if err != nil {
		return cfg, fmt.Errorf("fetch channel index: %w", err)
	}
	cfg.Available = channel.Merge(cfg.Available, avail)
	c.Logger.Debug("merged channel index", "channels", len(clients), "packages", len(avail))
	return cfg, nil
}

// channelSubdirs lists the subdirs whose packages can satisfy a render.
func channelSubdirs(cfg config.Config) []string {
	subdirs := []string{cfg.HostSubdir, cfg.BuildSubdir, "noarch"}
	slices.Sort(subdirs)
	return slices.Compact(subdirs)
}

// pipelineOptions builds render options for a recipe from the shared flags.
func (c *CLI) pipelineOptions(ctx context.Context, recipePath string, pairs []string) (pipeline.Options, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{
		Recipe: recipePath,
		Config: cfg,
		Env:    c.Env,
		Logger: c.Logger,
	}
	if len(pairs) > 0 {
		v, ok := variant.Parse(pairs)
		if !ok {
			return pipeline.Options{}, fmt.Errorf("invalid --variant %q: want key=value", pairs)
		}
		opts.Variants = []variant.Variant{v}
	}
	return opts, nil
}
