// Package app wires the greeting pipeline from a Config. The binaries under
// cmd/ differ only in how they trigger App.Run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"greetbot/internal/config"
	"greetbot/internal/core"
	"greetbot/internal/db"
	"greetbot/internal/dispatch"
	"greetbot/internal/festivals"
	"greetbot/internal/ledger"
	"greetbot/internal/mailer"
	"greetbot/internal/metrics"
	"greetbot/internal/occasions"
	"greetbot/internal/queue"
	"greetbot/internal/roster"
	"greetbot/internal/run"
	"greetbot/internal/runlock"
	"greetbot/internal/sheets"
	"greetbot/internal/types"
)

// SendLogTable is the workbook sheet holding the send log.
const SendLogTable = "send_log"

// Options adjust wiring for a particular entry point.
type Options struct {
	// DryRun sends nothing, writes nothing to the send log and takes no
	// cross-process lock. Entries already in the send log still cause skips.
	DryRun bool
	// Sender replaces the configured transport. The retry, breaker and
	// attachment decorators still apply.
	Sender mailer.Sender
	// Gateway replaces the configured table gateway.
	Gateway sheets.Gateway
	// Clock replaces the system clock.
	Clock run.Clock
}

// App is a fully wired greeting pipeline.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Controller *run.Controller
	Guard      *runlock.Guard
	Probes     []core.HealthProbe

	awsCfg  *aws.Config
	closers []func()
}

var _ core.Runner = (*App)(nil)

// New builds an App. Close releases its connections.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := cfg.Dispatch.Location()
	if err != nil {
		return nil, err
	}

	gw := opts.Gateway
	if gw == nil {
		if gw, err = newGateway(ctx, cfg.Sheets); err != nil {
			return nil, err
		}
	}
	tables, logTable := tableRefs(cfg.Sheets)

	var extra []roster.FestivalSource
	if cfg.Festivals.ICSPath != "" {
		extra = append(extra, festivals.NewICSFile(cfg.Festivals.ICSPath, loc, logger))
	}
	loader := roster.NewLoader(gw, tables, logger, extra...)

	matcher, err := occasions.NewMatcher(cfg.Dispatch.Signature)
	if err != nil {
		return nil, fmt.Errorf("building matcher: %w", err)
	}

	sheetLedger := ledger.NewSheetLedger(gw, logTable, loc, logger)
	var l ledger.Ledger = sheetLedger
	if opts.DryRun {
		entries, err := sheetLedger.Entries(ctx)
		if err != nil {
			return nil, err
		}
		l = ledger.NewMemoryLedger(entries...)
	}

	sender, err := a.newSender(ctx, opts)
	if err != nil {
		return nil, err
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithChunkPause(cfg.Dispatch.ChunkPause),
		dispatch.WithLogger(logger),
	}
	if cfg.AWS.FailureQueueURL != "" && !opts.DryRun {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		publisher := queue.NewFailurePublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
		dispatchOpts = append(dispatchOpts, dispatch.WithFailureSink(publisher))
	}
	dispatcher := dispatch.New(sender, l, dispatchOpts...)

	var recorder run.Metrics = metrics.LogRecorder{Logger: logger}
	if cfg.AWS.EnableMetrics && !opts.DryRun {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		recorder = metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	ctlOpts := []run.Option{run.WithMetrics(recorder), run.WithLogger(logger)}
	if opts.Clock != nil {
		ctlOpts = append(ctlOpts, run.WithClock(opts.Clock))
	}
	a.Controller = run.NewController(loader, matcher, dispatcher, run.Config{
		ChunkSize: cfg.Dispatch.ChunkSize,
		Location:  loc,
	}, ctlOpts...)

	if opts.DryRun {
		a.Guard = runlock.NewGuard(runlock.Nop{}, cfg.Lock.TTL, runlock.WithLogger(logger))
	} else if a.Guard, err = a.newGuard(ctx); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "greeting pipeline ready",
		"gateway", gatewayKind(cfg.Sheets),
		"mail_provider", cfg.Mail.Provider,
		"lock_backend", cfg.Lock.Backend,
		"dry_run", opts.DryRun,
		"timezone", loc.String(),
	)
	return a, nil
}

// Today is the current date in the dispatch timezone.
func (a *App) Today() types.Date {
	return a.Controller.Today()
}

// Run performs a locked greeting run for date.
func (a *App) Run(ctx context.Context, date types.Date) run.Result {
	return a.Guard.Run(ctx, date, func(ctx context.Context) run.Result {
		return a.Controller.Run(ctx, date)
	})
}

// Preview lists the candidates for date without sending.
func (a *App) Preview(ctx context.Context, date types.Date) ([]types.Candidate, error) {
	return a.Controller.Preview(ctx, date)
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newGateway(ctx context.Context, cfg config.SheetsConfig) (sheets.Gateway, error) {
	if cfg.UseWorkbook() {
		return sheets.NewWorkbookGateway(cfg.WorkbookPath), nil
	}
	return sheets.NewSheetsGateway(ctx, []byte(cfg.CredentialsJSON.Unmask()))
}

func gatewayKind(cfg config.SheetsConfig) string {
	if cfg.UseWorkbook() {
		return "workbook"
	}
	return "google_sheets"
}

// tableRefs maps the configuration to table references. In workbook mode
// every table is a sheet named after it.
func tableRefs(cfg config.SheetsConfig) (roster.Tables, sheets.TableRef) {
	if cfg.UseWorkbook() {
		return roster.Tables{
			Roster:    sheets.TableRef{Range: roster.TableRoster},
			Festivals: sheets.TableRef{Range: roster.TableFestivals},
			Custom:    sheets.TableRef{Range: roster.TableCustom},
		}, sheets.TableRef{Range: SendLogTable}
	}
	return roster.Tables{
		Roster:    sheets.TableRef{SpreadsheetID: cfg.RosterSpreadsheetID, Range: cfg.RosterRange},
		Festivals: sheets.TableRef{SpreadsheetID: cfg.FestivalSpreadsheetID, Range: cfg.FestivalRange},
		Custom:    sheets.TableRef{SpreadsheetID: cfg.CustomSpreadsheetID, Range: cfg.CustomRange},
	}, sheets.TableRef{SpreadsheetID: cfg.LogSpreadsheetID, Range: cfg.LogRange}
}

// newSender builds transport → breaker → retry → default attachment.
func (a *App) newSender(ctx context.Context, opts Options) (mailer.Sender, error) {
	cfg := a.Config.Mail
	from := mailer.Identity{Name: cfg.FromName, Address: cfg.SenderAddress()}

	transport := opts.Sender
	switch {
	case transport != nil:
	case opts.DryRun:
		transport = mailer.LogSender{Logger: a.Logger}
	case cfg.Provider == "ses":
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		transport = mailer.NewSESSender(awsCfg, mailer.SESConfig{
			From:          from,
			ConfigSetName: cfg.SESConfigurationSet,
			Logger:        a.Logger,
		})
	default:
		transport = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Username,
			Password: cfg.Password.Unmask(),
			From:     from,
		})
	}

	var sender mailer.Sender = mailer.NewBreakerSender(transport, "mail-"+cfg.Provider, cfg.BreakerFailures, cfg.BreakerTimeout)
	sender = mailer.NewRetryingSender(sender, a.Config.Dispatch.MaxAttempts, a.Config.Dispatch.RetryBackoff,
		mailer.WithRetryLogger(a.Logger))

	if cfg.AttachmentPath != "" {
		sender = mailer.WithDefaultAttachment(sender, &mailer.Attachment{Name: cfg.AttachmentName, Path: cfg.AttachmentPath})
	}
	return sender, nil
}

// newGuard connects the configured lock backend.
func (a *App) newGuard(ctx context.Context) (*runlock.Guard, error) {
	cfg := a.Config.Lock
	guardOpts := []runlock.GuardOption{runlock.WithLogger(a.Logger)}

	switch cfg.Backend {
	case config.LockBackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL.Unmask())
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "connecting to lock database", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "preparing lock tables", err)
		}
		a.Probes = append(a.Probes, core.ProbeFunc{ProbeName: "postgres", Fn: pool.Ping})
		guardOpts = append(guardOpts, runlock.WithHistory(db.NewJobHistoryRepository(pool)))
		return runlock.NewGuard(runlock.NewPostgresLocker(db.NewJobLockRepository(pool)), cfg.TTL, guardOpts...), nil

	case config.LockBackendRedis:
		locker, rdb, err := runlock.NewRedisLocker(ctx, cfg.RedisURL.Unmask())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Probes = append(a.Probes, core.ProbeFunc{ProbeName: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		return runlock.NewGuard(locker, cfg.TTL, guardOpts...), nil

	case config.LockBackendNone, "":
		return runlock.NewGuard(runlock.Nop{}, cfg.TTL, guardOpts...), nil

	default:
		return nil, errors.New("unknown lock backend " + cfg.Backend)
	}
}

// aws loads the SDK config once. AWS_ENDPOINT_URL points every client at
// LocalStack.
func (a *App) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Config.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if a.Config.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(a.Config.AWS.EndpointURL)
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}
