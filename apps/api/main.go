package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/susahesumudu/mit-erp/apps/api/echo"
	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/notify"
	"github.com/susahesumudu/mit-erp/core/user"
	emailsvc "github.com/susahesumudu/mit-erp/services/email"
	logsvc "github.com/susahesumudu/mit-erp/services/logger"
	"github.com/susahesumudu/mit-erp/services/pubsub"
	"github.com/susahesumudu/mit-erp/storage/database"
	inmemdb "github.com/susahesumudu/mit-erp/storage/database/inmem"
	boiledrepos "github.com/susahesumudu/mit-erp/storage/database/sqlboiler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.Conf

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up repositories
	var (
		usrRepo   user.Repository
		gradeRepo grade.Repository
	)
	if conf.Database.Engine == "memory" {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		gradeRepo = inmemdb.NewGradeRepository(mem)
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		}()
		usrRepo = boiledrepos.NewUserRepository(db)
		gradeRepo = boiledrepos.NewGradeRepository(db)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up prediction artifacts
	artifacts := grade.NewArtifactStore(conf.Artifacts.ScalerPath(), conf.Artifacts.ClassifierPath(), logger)
	if err := artifacts.Reload(); err != nil {
		// predictions fail until the artifacts are fixed and reloaded
		logger.Error(fmt.Sprintf("loading prediction artifacts: %v", err), err)
	}
	if conf.Artifacts.Watch {
		if err := artifacts.Watch(ctx); err != nil {
			logger.Error(fmt.Sprintf("watching prediction artifacts: %v", err), err)
		}
	}

	// set up notifications
	hub := pubsub.NewHub(logger)
	go hub.Run(ctx)

	var publisher notify.Publisher = hub
	if conf.Redis.Address != "" {
		broker := pubsub.NewRedisBroker(pubsub.NewRedisClient(conf.Redis), conf.Redis.ChannelPrefix, hub, logger)
		hub.SetRelay(broker)
		publisher = broker
		go func() {
			if err := broker.Run(ctx); err != nil {
				logger.Error(fmt.Sprintf("redis broker stopped: %v", err), err)
			}
		}()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	dispatcher := notify.NewDispatcher(publisher, mailSvc, logger, conf.Notify.PublishTimeout)
	usrSvc := user.NewService(usrRepo)
	gradeSvc := grade.NewService(gradeRepo, artifacts, dispatcher, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
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

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:      conf,
			Logger:    logger,
			UserSvc:   usrSvc,
			GradeSvc:  gradeSvc,
			Artifacts: artifacts,
			Hub:       hub,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer shutdownCancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
