package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	echoapi "github.com/trezcool/schoolstats/apps/api/echo"
	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/widget"
	appfs "github.com/trezcool/schoolstats/fs"
	emailsvc "github.com/trezcool/schoolstats/services/email"
	eventsvc "github.com/trezcool/schoolstats/services/events"
	"github.com/trezcool/schoolstats/services/filestore"
	logsvc "github.com/trezcool/schoolstats/services/logger"
	metricsvc "github.com/trezcool/schoolstats/services/metrics"
	"github.com/trezcool/schoolstats/storage/database"
	dummydb "github.com/trezcool/schoolstats/storage/database/dummy"
	inmemdb "github.com/trezcool/schoolstats/storage/database/inmem"
	mongorepos "github.com/trezcool/schoolstats/storage/database/mongo"
	sqlxrepos "github.com/trezcool/schoolstats/storage/database/sqlx"
	"github.com/trezcool/schoolstats/storage/schemafs"
)

const metricsNamespace = "schoolstats"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZap(conf.Debug)
	if err != nil {
		log.Fatalf("main.NewZap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Sugar().Named("api"), conf)
	defer logger.Close()
	dbLogger := logsvc.NewRollbarLogger(zl.Sugar().Named("db"), conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up DB
	store, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := store.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	schemas, schemaFiles, err := setUpSchemas(conf, store.schemas, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up schemas: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	events := eventsvc.NewNoopPublisher()
	if conf.NatsURL != "" {
		nats, err := eventsvc.Connect(conf.NatsURL, conf.AppName)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up events: %v", err), err)
		}
		defer func() { _ = nats.Close() }()
		events = nats
	}

	loc, err := time.LoadLocation(conf.Reports.Timezone)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading timezone %q: %v", conf.Reports.Timezone, err), err)
	}

	var schools report.SchoolDirectory
	if name := conf.Reports.SchoolsFile; name != "" {
		list, err := schemafs.ReadSchools(name)
		if err != nil {
			logger.Fatal(fmt.Sprintf("loading schools: %v", err), err)
		}
		logger.Info(fmt.Sprintf("%d schools loaded from %s", len(list), name))
		schools = list
	}

	storage := filestore.NewLocalStorage(conf.Storage)
	metrics := metricsvc.New(metricsNamespace)
	reportSvc := report.NewService(report.Deps{
		Repository: store.reports,
		Schemas:    schemas,
		Schools:    schools,
		Storage:    storage,
		Email:      mailSvc,
		Events:     events,
		Logger:     logger,
		Metrics:    metrics,
		Registry:   widget.NewRegistry(widget.Options{MaxUploadSize: conf.Storage.MaxUploadSize}),
		Config:     conf.Reports,
		Location:   loc,
	})

	if schemaFiles != nil {
		if err := schemafs.Watch(ctx, schemaFiles, conf.Reports.SchemasDir, logger, reportSvc.InvalidateSchemas); err != nil {
			logger.Error(fmt.Sprintf("watching schemas: %v", err), err)
		}
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	report.InitValidators(validate, translator)
	schema.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	// close idle editing sessions
	scheduler := cron.New()
	_, err = scheduler.AddFunc(conf.Reports.SessionPurgeSpec, func() {
		if n := reportSvc.PurgeSessions(conf.Reports.SessionIdle); n > 0 {
			logger.Info(fmt.Sprintf("closed %d idle session(s)", n))
		}
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("scheduling session purge: %v", err), err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		conf.Server.Addr,
		shutdown,
		&echoapi.Deps{
			Conf:       conf,
			Logger:     logger,
			ReportSvc:  reportSvc,
			Storage:    storage,
			Metrics:    metrics,
			Validate:   validate,
			Translator: translator,
		},
	)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Addr))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

type dataStore struct {
	reports report.Repository
	// schemas is nil when the engine does not store schemas.
	schemas report.SchemaSource
	close   func() error
}

func setUpDB(ctx context.Context, conf *core.Config) (dataStore, error) {
	switch conf.Database.Engine {
	case "memory":
		return dataStore{
			reports: inmemdb.NewReportRepository(inmemdb.Open()),
			close:   func() error { return nil },
		}, nil

	case "mongo":
		db, err := mongorepos.Open(ctx, conf.Database)
		if err != nil {
			return dataStore{}, err
		}
		return dataStore{
			reports: mongorepos.NewReportRepository(db),
			close:   func() error { return db.Client().Disconnect(context.Background()) },
		}, nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return dataStore{}, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return dataStore{}, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return dataStore{}, err
	}
	return dataStore{
		reports: sqlxrepos.NewReportRepository(db),
		schemas: sqlxrepos.NewSchemaSource(db),
		close:   db.Close,
	}, nil
}

// setUpSchemas prefers the schema files of conf.Reports.SchemasDir, then the schemas of the database.
func setUpSchemas(conf *core.Config, dbSchemas report.SchemaSource, logger core.Logger) (report.SchemaSource, *schemafs.Store, error) {
	if dir := conf.Reports.SchemasDir; dir != "" {
		store, err := schemafs.Open(dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(fmt.Sprintf("schemas loaded from %s: %v", dir, store.ReportTypes()))
		return store, store, nil
	}
	if dbSchemas != nil {
		return dbSchemas, nil, nil
	}
	logger.Warn("no schema source configured: every report type is unknown")
	return dummydb.NewSchemaStore(), nil, nil
}
