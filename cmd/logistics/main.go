package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics/cmd/logistics/cli"
	"github.com/odyssey-erp/logistics/internal/app"
	"github.com/odyssey-erp/logistics/internal/auth"
	"github.com/odyssey-erp/logistics/internal/customers"
	"github.com/odyssey-erp/logistics/internal/delivery"
	"github.com/odyssey-erp/logistics/internal/inventory"
	"github.com/odyssey-erp/logistics/internal/items"
	"github.com/odyssey-erp/logistics/internal/observability"
	"github.com/odyssey-erp/logistics/internal/parcel"
	"github.com/odyssey-erp/logistics/internal/platform/cache"
	"github.com/odyssey-erp/logistics/internal/platform/db"
	"github.com/odyssey-erp/logistics/internal/platform/storage"
	"github.com/odyssey-erp/logistics/internal/rbac"
	"github.com/odyssey-erp/logistics/internal/shared"
	"github.com/odyssey-erp/logistics/internal/transfer"
	"github.com/odyssey-erp/logistics/jobs"
	"github.com/odyssey-erp/logistics/report"
)

const usage = `usage:
  logistics [serve]
  logistics token issue -name NAME -perms p1,p2|all [-ttl 720h] [-json]
  logistics jobs trigger TASK [DELIVERY_NOTE]
  logistics jobs stats`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "serve" {
		if err := serve(ctx, stop, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	os.Exit(runCommand(ctx, cfg, logger, args))
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "token issue":
		fs := flag.NewFlagSet("token issue", flag.ContinueOnError)
		opts := cli.TokenIssueOptions{}
		fs.StringVar(&opts.Name, "name", "", "token owner, shown as the audit actor")
		fs.StringVar(&opts.Permissions, "perms", "", "comma separated permissions or all")
		fs.DurationVar(&opts.TTL, "ttl", 0, "token lifetime, zero for no expiry")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		return cli.IssueTokenCommand(ctx, auth.NewService(auth.NewRepository(pool), logger), opts)
	case "jobs trigger", "jobs stats":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		if args[1] == "stats" {
			stats, err := jobsCLI.InspectQueue(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
				return 1
			}
			_ = json.NewEncoder(os.Stdout).Encode(stats)
			return 0
		}
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		var arg string
		if len(args) > 3 {
			arg = args[3]
		}
		info, err := jobsCLI.Trigger(ctx, args[2], arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return 0
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	authService := auth.NewService(auth.NewRepository(dbpool), logger)
	authHandler := auth.NewHandler(logger, authService)

	deliveryService := delivery.NewService(delivery.NewRepository(dbpool), auditLogger, logger)
	deliveryHandler := delivery.NewHandler(logger, deliveryService, rbacMiddleware)

	parcelService, err := buildParcelService(ctx, cfg, logger, dbpool, cache.NewJSON(redisClient, cfg.ParcelCacheTTL), auditLogger)
	if err != nil {
		return err
	}
	publisher, err := jobs.NewClient(redisOpts, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()
	parcelService.SetPublisher(publisher)
	parcelService.SetStatusObserver(metrics)
	parcelHandler := parcel.NewHandler(logger, parcelService, rbacMiddleware)

	inventoryService := inventory.NewService(
		inventory.NewRepository(dbpool),
		auditLogger,
		idempotencyStore,
		inventory.ServiceConfig{AllowNegativeStock: cfg.InventoryAllowNegative},
		logger,
	)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware)

	transferService := transfer.NewService(transfer.NewRepository(dbpool), inventoryService, auditLogger, idempotencyStore, logger)
	transferHandler := transfer.NewHandler(logger, transferService, rbacMiddleware)

	itemService := items.NewService(items.NewRepository(dbpool), cache.NewJSON(redisClient, cfg.ParcelCacheTTL))
	itemHandler := items.NewHandler(logger, itemService, rbacMiddleware)

	customerService := customers.NewService(customers.NewRepository(dbpool))
	customerHandler := customers.NewHandler(logger, customerService, rbacMiddleware)

	var reportHandler *report.Handler
	if cfg.GotenbergURL != "" {
		renderer := report.NewClient(cfg.GotenbergURL, report.LabelPage, cfg.AppRequestTimeout)
		parcelService.SetLabelRenderer(renderer)
		reportHandler = report.NewHandler(renderer, logger)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		AuthHandler:      authHandler,
		DeliveryHandler:  deliveryHandler,
		ParcelHandler:    parcelHandler,
		TransferHandler:  transferHandler,
		InventoryHandler: inventoryHandler,
		ItemsHandler:     itemHandler,
		CustomerHandler:  customerHandler,
		ReportHandler:    reportHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildParcelService wires the parcel service with object storage when it is
// configured.
func buildParcelService(
	ctx context.Context,
	cfg *app.Config,
	logger *slog.Logger,
	pool *pgxpool.Pool,
	listCache parcel.ListCache,
	audit parcel.AuditPort,
) (*parcel.Service, error) {
	var store parcel.ObjectStore
	if cfg.StorageEnabled() {
		st, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = st
	} else {
		logger.Warn("object storage disabled, QR codes are rendered on demand")
	}
	return parcel.NewService(
		parcel.NewRepository(pool),
		store,
		listCache,
		audit,
		logger,
		parcel.ServiceConfig{PublicBaseURL: cfg.PublicBaseURL},
	), nil
}
