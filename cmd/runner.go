package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/cache"
	"github.com/desertthunder/trackbridge/internal/matcher"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/ratelimit"
	"github.com/desertthunder/trackbridge/internal/repositories"
	"github.com/desertthunder/trackbridge/internal/resolver"
	"github.com/desertthunder/trackbridge/internal/services"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/desertthunder/trackbridge/internal/tokens"
	"github.com/urfave/cli/v3"
)

// DefaultSession owns the tokens and transfers of command line runs.
const DefaultSession = "local"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Platform clients, the token store and the engine are wired lazily by [Runner.wire] so commands
// like setup run without credentials or a database.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db       *sql.DB
	registry *services.Registry
	kv       tokens.KeyValue
	tokens   *tokens.Store
	sessions *tokens.Sessions
	history  *repositories.TransferRepository
	resolver *resolver.Resolver
	engine   *tasks.TransferEngine
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Registry and KV replace the configured platform clients and the sqlite token table.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Registry   *services.Registry
	KV         tokens.KeyValue
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		registry:   opts.Registry,
		kv:         opts.KV,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, serveCommand, transferCommand, playlistsCommand, exportCommand, searchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before runs ahead of every command: it applies the global flags and loads the configuration.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if path := cmd.String("env"); path != "" {
		if err := shared.LoadEnv(path); err != nil {
			r.logger.Warn("failed to load env file", "path", path, "error", err)
		}
	}
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	_, err := r.loadConfig()
	return ctx, err
}

// loadConfig reads the config file when it exists and falls back to defaults otherwise.
// Environment credentials always win.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	config := shared.DefaultConfig()
	if r.configPath != "" {
		loaded, err := shared.LoadConfig(r.configPath)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, fs.ErrNotExist):
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		default:
			return nil, err
		}
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	r.config = config
	return config, nil
}

// wire builds the platform clients, token store, resolver and engine.
func (r *Runner) wire(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	if r.registry == nil {
		if r.registry, err = r.platforms(config); err != nil {
			return err
		}
	}

	if r.kv == nil {
		if err := r.openDatabase(ctx, config); err != nil {
			return err
		}
		r.kv = repositories.NewKVRepository(r.db)
		r.history = repositories.NewTransferRepository(r.db)
	}

	r.tokens = tokens.NewStore(r.kv, r.registry.OAuthConfigs(),
		tokens.WithSkew(config.Tokens.Skew()),
		tokens.WithHTTPClient(r.httpClient),
		tokens.WithLogger(shared.WithLogger(r.logger, "component", "tokens")),
	)
	r.sessions = tokens.NewSessions(r.kv)

	searchCache, err := cache.FromConfig(config.Cache)
	if err != nil {
		return err
	}

	mode := matcher.Combined
	if config.Transfer.WeightedMatching {
		mode = matcher.Weighted
	}
	r.resolver = resolver.New(r.tokens, ratelimit.New(ratelimit.FromConfig(config.RateLimit)), searchCache,
		resolver.WithMatcher(matcher.New(mode)),
		resolver.WithSearchLimit(config.Transfer.SearchLimit),
		resolver.WithReserveRetries(config.Transfer.ReserveRetries),
		resolver.WithLogger(shared.WithLogger(r.logger, "component", "resolver")),
	)

	opts := []tasks.EngineOption{
		tasks.WithConcurrency(config.Transfer.Concurrency),
		tasks.WithProgressBand(config.Transfer.ProgressStart, config.Transfer.ProgressEnd),
		tasks.WithLogger(shared.WithLogger(r.logger, "component", "engine")),
	}
	if r.history != nil {
		opts = append(opts, tasks.WithHistory(r.history))
	}
	r.engine = tasks.NewTransferEngine(r.registry, r.tokens, r.resolver, opts...)
	return nil
}

// platforms registers a client for every platform with configured credentials.
func (r *Runner) platforms(config *shared.Config) (*services.Registry, error) {
	opts := []services.Option{
		services.WithHTTPClient(r.httpClient),
		services.WithTimeout(config.HTTP.Timeout()),
		services.WithRetryPolicy(config.HTTP.RetryPolicy()),
		services.WithLogger(shared.WithLogger(r.logger, "component", "services")),
	}

	registry := services.NewRegistry()
	if config.Credentials.Spotify.Configured() {
		spotify, err := services.NewSpotifyService(config.Credentials.Spotify, opts...)
		if err != nil {
			return nil, err
		}
		registry.Register(spotify)
	}
	if config.Credentials.SoundCloud.Configured() {
		soundcloud, err := services.NewSoundCloudService(config.Credentials.SoundCloud, opts...)
		if err != nil {
			return nil, err
		}
		registry.Register(soundcloud)
	}

	if len(registry.Platforms()) == 0 {
		return nil, fmt.Errorf("%w: set client_id and client_secret for spotify and soundcloud in %s or the environment",
			shared.ErrMissingCredentials, r.configPathOrDefault())
	}
	return registry, nil
}

func (r *Runner) openDatabase(ctx context.Context, config *shared.Config) error {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.db = db
	return nil
}

// Close releases the database handle.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) configPathOrDefault() string {
	if r.configPath == "" {
		return "config.toml"
	}
	return r.configPath
}

// session returns the --session flag, defaulting to [DefaultSession].
func session(cmd *cli.Command) string {
	if s := cmd.String("session"); s != "" {
		return s
	}
	return DefaultSession
}

// platformFlag parses a platform flag value.
func platformFlag(cmd *cli.Command, name string) (models.Platform, error) {
	p, err := models.ParsePlatform(cmd.String(name))
	if err != nil {
		return "", fmt.Errorf("%w: --%s: %w", shared.ErrInvalidArgument, name, err)
	}
	return p, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
