// Command lifecyclectl operates PhotoFlow's storage lifecycle from the
// command line: policy scans, cross-provider migrations, listing
// comparisons and delivery URL generation.
//
// Scans are dry runs unless --execute is given. Reports print to stdout,
// logs to stderr, so output can be piped safely.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sean-she/photoflow-storage/bootstrap"
	"github.com/sean-she/photoflow-storage/cdn"
	"github.com/sean-she/photoflow-storage/config"
	"github.com/sean-she/photoflow-storage/di"
	"github.com/sean-she/photoflow-storage/engine"
	apperrors "github.com/sean-she/photoflow-storage/errors"
	"github.com/sean-she/photoflow-storage/lifecycle"
	"github.com/sean-she/photoflow-storage/migrate"
	"github.com/sean-she/photoflow-storage/observability"
	"github.com/sean-she/photoflow-storage/storage"
	_ "github.com/sean-she/photoflow-storage/storage/local"
	_ "github.com/sean-she/photoflow-storage/storage/memory"
	_ "github.com/sean-she/photoflow-storage/storage/s3"
	"github.com/sean-she/photoflow-storage/util"
	"github.com/sean-she/photoflow-storage/validation"
	"github.com/sean-she/photoflow-storage/version"
)

const cliName = "lifecyclectl"

var (
	flagConfig    = pflag.String("config", "", "path to config.yml (default: search standard locations)")
	flagEnvFile   = pflag.String("env-file", "", "path to .env file (default: search standard locations)")
	flagPolicy    = pflag.String("policy", "", "path to the lifecycle policy YAML")
	flagAuditFile = pflag.String("audit-file", "", "append audit entries to this file as JSON lines")
	flagJSON      = pflag.Bool("json", false, "print reports as JSON")
	flagTimeout   = pflag.Duration("timeout", 0, "abort the command after this duration (0 = no timeout)")

	flagProvider = pflag.String("provider", "", "storage backend: s3, local or memory")
	flagBucket   = pflag.String("bucket", "", "S3 bucket name")
	flagRegion   = pflag.String("region", "", "AWS region")
	flagEndpoint = pflag.String("endpoint", "", "custom S3-compatible endpoint")
	flagBasePath = pflag.String("base-path", "", "root directory for local storage")

	flagPrefix      = pflag.String("prefix", "", "restrict the operation to keys with this prefix")
	flagExecute     = pflag.Bool("execute", false, "apply actions instead of the default dry run")
	flagMaxFiles    = pflag.Int("max-files", 0, "stop after this many objects (0 = no cap)")
	flagConcurrency = pflag.Int("concurrency", 0, "parallel object operations per listing page")
	flagPageSize    = pflag.Int("page-size", 0, "listing page size override")

	flagDestProvider = pflag.String("dest-provider", "", "destination backend for migrate and compare")
	flagDestBucket   = pflag.String("dest-bucket", "", "destination S3 bucket")
	flagDestRegion   = pflag.String("dest-region", "", "destination AWS region")
	flagDestEndpoint = pflag.String("dest-endpoint", "", "destination S3-compatible endpoint")
	flagDestBasePath = pflag.String("dest-base-path", "", "destination root directory for local storage")
	flagDeleteSource = pflag.Bool("delete-source", false, "delete each source object after its copy succeeds")
	flagVerify       = pflag.Bool("verify", false, "re-read destination metadata after each upload")

	flagSigned  = pflag.Bool("signed", false, "generate an expiring signed URL")
	flagExpires = pflag.Duration("expires", 0, "signed URL validity (default: cdn.signed_ttl)")
	flagWidth   = pflag.Int("width", 0, "image transform width in pixels")
	flagHeight  = pflag.Int("height", 0, "image transform height in pixels")
	flagFormat  = pflag.String("format", "", "image transform output format (webp, avif, ...)")
	flagQuality = pflag.Int("quality", 0, "image transform encoder quality (1-100)")
)

// appConfig is the full CLI configuration: service identity plus the
// engine assembly and an optional migration destination.
type appConfig struct {
	config.ServiceConfig `mapstructure:",squash"`

	Engine    engine.Config   `mapstructure:"engine"`
	Dest      storage.Config  `mapstructure:"dest"`
	Telemetry telemetryConfig `mapstructure:"telemetry"`
}

// telemetryConfig controls OTLP trace and metric export. Off unless
// enabled explicitly; spans and counters stay no-ops otherwise.
type telemetryConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	Insecure   bool          `mapstructure:"insecure"`
	SampleRate float64       `mapstructure:"sample_rate"`
	Interval   time.Duration `mapstructure:"interval"`
}

func (c *appConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = cliName
	}
	if c.ServiceConfig.Version == "" {
		c.ServiceConfig.Version = version.Short()
	}
	// Reports own stdout; logs go to stderr unless configured otherwise.
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = 15 * time.Second
	}
	c.ServiceConfig.ApplyDefaults()
}

// Validate checks the full CLI configuration before any component is built.
func (c *appConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	v := validation.New()
	v.Custom(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1,
		"telemetry.sample_rate", "must be between 0 and 1")
	v.Custom(c.Telemetry.Interval >= 0, "telemetry.interval", "must not be negative")
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  scan         evaluate the lifecycle policy against stored objects
  migrate      copy objects from the configured provider to the destination
  compare      diff source and destination listings under a prefix
  url <key>    print the delivery URL for an object
  version      print build information

Examples:
  %s scan --policy policy.yml --prefix albums/
  %s scan --policy policy.yml --execute --max-files 1000
  %s migrate --dest-provider local --dest-base-path /backup --verify
  %s compare --dest-provider local --dest-base-path /backup
  %s url albums/a1/photos/p1/original/photo.jpg --signed --expires 1h

Flags:
`, cliName, cliName, cliName, cliName, cliName, cliName)
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	cmd := pflag.Arg(0)
	switch cmd {
	case "":
		usage()
		os.Exit(2)
	case "version":
		printVersion()
		return
	case "scan", "migrate", "compare", "url":
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n\n", cliName, cmd)
		usage()
		os.Exit(2)
	}

	if err := run(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cliName, err)
		// Rejected config or policy is usage, not an operational failure.
		if apperrors.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printVersion() {
	info := version.Get()
	if *flagJSON {
		printJSON(info)
		return
	}
	fmt.Printf("%s %s\n", cliName, version.Full())
	fmt.Printf("  go: %s\n", info.GoVersion)
}

func run(cmd string) error {
	if err := validateFlags(cmd); err != nil {
		return err
	}

	cfg := &appConfig{}
	var loadOpts []config.LoaderOption
	if *flagConfig != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(*flagConfig))
	}
	if *flagEnvFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(*flagEnvFile))
	}
	if err := config.LoadConfig(cliName, cfg, loadOpts...); err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	// The url command is made for piping; keep its stdout to the URL alone.
	appOpts := []bootstrap.Option{}
	if cmd == "url" || *flagJSON {
		appOpts = append(appOpts, bootstrap.WithQuietStartup())
	}

	app, err := bootstrap.NewApp(cfg, appOpts...)
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := initTelemetry(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		app.OnStop(shutdown)
	}

	eng := engine.New(cfg.Engine, app.Logger)
	if err := app.RegisterComponent(eng); err != nil {
		return err
	}

	app.Container.RegisterSingleton(di.Core.Config, cfg)
	app.Container.RegisterSingleton(di.Core.Logger, app.Logger)
	app.Container.RegisterSingleton(di.Core.Engine, eng)
	app.Container.RegisterSingleton(di.Core.Audit, eng.Audit())

	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*appConfig]) error {
		// Provider and generator exist once the engine has started.
		if err := a.Container.RegisterSingleton(di.Core.Provider, eng.Provider()); err != nil {
			return err
		}
		return a.Container.RegisterSingleton(di.Core.CDN, eng.Generator())
	})

	ctx := context.Background()
	if *flagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *flagTimeout)
		defer cancel()
	}

	return app.RunTask(ctx, func(ctx context.Context) error {
		switch cmd {
		case "scan":
			return runScan(ctx, eng)
		case "migrate":
			return runMigrate(ctx, app, eng)
		case "compare":
			return runCompare(ctx, app, eng)
		case "url":
			return runURL(ctx, eng)
		}
		return fmt.Errorf("unknown command %q", cmd)
	})
}

// initTelemetry starts the OTLP trace and metric exporters and returns a
// hook that flushes both on shutdown.
func initTelemetry(ctx context.Context, cfg *appConfig) (bootstrap.Hook, error) {
	tp, err := observability.InitTracer(ctx, &observability.TracerConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: cfg.ServiceConfig.Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	mp, err := observability.InitMeter(ctx, &observability.MeterConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: cfg.ServiceConfig.Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Interval:       cfg.Telemetry.Interval,
	})
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx))
	}
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// validateFlags rejects out-of-range flag values before any component is
// built. Zero means "use the configured default" throughout, so only
// explicitly bad input fails.
func validateFlags(cmd string) error {
	v := validation.New()
	v.Min("max-files", *flagMaxFiles, 0)
	v.Range("concurrency", *flagConcurrency, 0, 256)
	v.Min("page-size", *flagPageSize, 0)
	// S3 lists at most 1000 keys per page.
	v.Max("page-size", *flagPageSize, 1000)
	if cmd == "url" {
		v.Min("width", *flagWidth, 0)
		v.Min("height", *flagHeight, 0)
		v.Range("quality", *flagQuality, 0, 100)
		v.Custom(*flagExpires >= 0, "expires", "must not be negative")
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// applyFlagOverrides lets command-line flags win over file and env config.
func applyFlagOverrides(cfg *appConfig) {
	src := &cfg.Engine.Storage
	if *flagProvider != "" {
		src.Provider = *flagProvider
	}
	if *flagBucket != "" {
		src.Bucket = *flagBucket
	}
	if *flagRegion != "" {
		src.Region = *flagRegion
	}
	if *flagEndpoint != "" {
		src.Endpoint = *flagEndpoint
	}
	if *flagBasePath != "" {
		src.BasePath = *flagBasePath
	}
	if *flagPolicy != "" {
		cfg.Engine.PolicyFile = *flagPolicy
	}
	if *flagAuditFile != "" {
		cfg.Engine.AuditFile = *flagAuditFile
	}

	dst := &cfg.Dest
	if *flagDestProvider != "" {
		dst.Provider = *flagDestProvider
	}
	if *flagDestBucket != "" {
		dst.Bucket = *flagDestBucket
	}
	if *flagDestRegion != "" {
		dst.Region = *flagDestRegion
	}
	if *flagDestEndpoint != "" {
		dst.Endpoint = *flagDestEndpoint
	}
	if *flagDestBasePath != "" {
		dst.BasePath = *flagDestBasePath
	}
}

func runScan(ctx context.Context, eng *engine.Engine) error {
	res, err := eng.Scan(ctx, lifecycle.ScanOptions{
		Prefix:      *flagPrefix,
		Execute:     *flagExecute,
		MaxFiles:    *flagMaxFiles,
		Concurrency: *flagConcurrency,
		PageSize:    *flagPageSize,
	})
	if res != nil {
		printScanResult(res)
	}
	return err
}

func printScanResult(res *lifecycle.ExecutionResult) {
	if *flagJSON {
		printJSON(res)
		return
	}
	mode := "dry run"
	if !res.DryRun {
		mode = "executed"
	}
	fmt.Printf("Scan %s (%s)\n", res.ExecutionID, mode)
	fmt.Printf("  evaluated: %d\n", res.TotalEvaluated)
	fmt.Printf("  matched:   %d\n", res.Matched)
	fmt.Printf("  archived:  %d\n", res.Archived)
	fmt.Printf("  deleted:   %d\n", res.Deleted)
	fmt.Printf("  kept:      %d\n", res.Kept)
	fmt.Printf("  blocked:   %d\n", res.Blocked)
	fmt.Printf("  duration:  %s\n", res.Duration.Round(time.Millisecond))
	if len(res.Errors) > 0 {
		fmt.Printf("  errors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("    %s  %s: %s\n", e.Key, e.Op, e.Message)
		}
	}
}

// destProvider builds the migration destination from the dest config
// section plus any --dest-* overrides.
func destProvider(ctx context.Context, app *bootstrap.App[*appConfig]) (storage.Provider, error) {
	if app.Cfg.Dest.Provider == "" {
		return nil, errors.New("destination provider is required (--dest-provider or dest.provider in config)")
	}
	return storage.New(ctx, app.Cfg.Dest, app.Logger)
}

func runMigrate(ctx context.Context, app *bootstrap.App[*appConfig], eng *engine.Engine) error {
	dest, err := destProvider(ctx, app)
	if err != nil {
		return err
	}
	res, err := migrate.Run(ctx, eng.Provider(), dest, migrate.Options{
		Prefix:       *flagPrefix,
		MaxFiles:     *flagMaxFiles,
		Concurrency:  *flagConcurrency,
		PageSize:     *flagPageSize,
		DeleteSource: *flagDeleteSource,
		Verify:       *flagVerify,
	})
	if res != nil {
		printMigrateResult(res)
	}
	return err
}

func printMigrateResult(res *migrate.Result) {
	if *flagJSON {
		printJSON(res)
		return
	}
	fmt.Printf("Migration %s (%s -> %s)\n", res.MigrationID, res.Source, res.Dest)
	fmt.Printf("  copied:   %d (%s)\n", res.Copied, util.FormatSize(res.BytesCopied))
	fmt.Printf("  deleted:  %d\n", res.Deleted)
	fmt.Printf("  failed:   %d\n", res.Failed)
	fmt.Printf("  duration: %s\n", res.Duration.Round(time.Millisecond))
	if len(res.Errors) > 0 {
		fmt.Printf("  errors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("    %s  %s: %s\n", e.Key, e.Stage, e.Message)
		}
	}
}

func runCompare(ctx context.Context, app *bootstrap.App[*appConfig], eng *engine.Engine) error {
	dest, err := destProvider(ctx, app)
	if err != nil {
		return err
	}
	diff, err := migrate.Compare(ctx, eng.Provider(), dest, *flagPrefix)
	if err != nil {
		return err
	}
	if *flagJSON {
		printJSON(diff)
	} else {
		printDiff(diff)
	}
	if !diff.InSync() {
		return errors.New("source and destination are out of sync")
	}
	return nil
}

func printDiff(d *migrate.Diff) {
	if d.InSync() {
		fmt.Println("Source and destination are in sync")
		return
	}
	if len(d.OnlyInSource) > 0 {
		fmt.Printf("Only in source (%d):\n", len(d.OnlyInSource))
		for _, k := range d.OnlyInSource {
			fmt.Printf("  %s\n", k)
		}
	}
	if len(d.OnlyInDest) > 0 {
		fmt.Printf("Only in destination (%d):\n", len(d.OnlyInDest))
		for _, k := range d.OnlyInDest {
			fmt.Printf("  %s\n", k)
		}
	}
	if len(d.SizeMismatches) > 0 {
		fmt.Printf("Size mismatches (%d):\n", len(d.SizeMismatches))
		for _, m := range d.SizeMismatches {
			fmt.Printf("  %s: source %s, dest %s\n", m.Key, util.FormatSize(m.SourceSize), util.FormatSize(m.DestSize))
		}
	}
}

func runURL(ctx context.Context, eng *engine.Engine) error {
	key := pflag.Arg(1)
	if key == "" {
		return errors.New("url: object key argument is required")
	}
	opts := &cdn.Options{
		Signed:    *flagSigned,
		ExpiresIn: *flagExpires,
	}
	if *flagWidth > 0 || *flagHeight > 0 || *flagFormat != "" || *flagQuality > 0 {
		opts.Transform = &cdn.ImageTransform{
			Width:   *flagWidth,
			Height:  *flagHeight,
			Format:  *flagFormat,
			Quality: *flagQuality,
		}
	}
	u, err := eng.GenerateCDNURL(ctx, key, opts)
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: encode report: %v\n", cliName, err)
		return
	}
	fmt.Println(string(out))
}
