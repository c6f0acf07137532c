package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/notify"
	emailsvc "github.com/susahesumudu/mit-erp/services/email"
	logsvc "github.com/susahesumudu/mit-erp/services/logger"
	"github.com/susahesumudu/mit-erp/services/pubsub"
	"github.com/susahesumudu/mit-erp/storage/database"
	inmemdb "github.com/susahesumudu/mit-erp/storage/database/inmem"
	boiledrepos "github.com/susahesumudu/mit-erp/storage/database/sqlboiler"
)

func main() {
	conf := core.Conf
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)

	cli := commandLine{out: os.Stdout}

	// set up DB & repos
	var gradeRepo grade.Repository
	if conf.Database.Engine == "memory" {
		if len(os.Args) > 1 && os.Args[1] == "migrate" {
			std.Fatal("migrate requires the postgres database engine")
		}
		mem := inmemdb.Open()
		cli.usrRepo = inmemdb.NewUserRepository(mem)
		gradeRepo = inmemdb.NewGradeRepository(mem)
	} else {
		db, err := database.Open(conf)
		errAndDie(std, err)
		defer db.Close()
		errAndDie(std, db.Ping())
		cli.db = db
		cli.usrRepo = boiledrepos.NewUserRepository(db)
		gradeRepo = boiledrepos.NewGradeRepository(db)
	}

	// set up services
	cli.artifacts = grade.NewArtifactStore(conf.Artifacts.ScalerPath(), conf.Artifacts.ClassifierPath(), logger)
	if err := cli.artifacts.Reload(); err != nil {
		std.Printf("loading prediction artifacts: %v", err)
	}
	core.ParseEmailTemplates(logger)
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	var publisher notify.Publisher
	if conf.Redis.Address != "" {
		publisher = pubsub.NewRedisBroker(pubsub.NewRedisClient(conf.Redis), conf.Redis.ChannelPrefix, nil, logger)
	}
	dispatcher := notify.NewSyncDispatcher(publisher, mailSvc, logger, conf.Notify.PublishTimeout)
	cli.gradeSvc = grade.NewService(gradeRepo, cli.artifacts, dispatcher, logger)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		closeDB(cli.db)
		os.Exit(1)
	}
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
