package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/dienlabs/eduportal/apps/api/echo"
	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
	"github.com/dienlabs/eduportal/core/affiliation"
	"github.com/dienlabs/eduportal/core/blob"
	"github.com/dienlabs/eduportal/core/courseware"
	"github.com/dienlabs/eduportal/core/exam"
	"github.com/dienlabs/eduportal/core/news"
	"github.com/dienlabs/eduportal/core/question"
	"github.com/dienlabs/eduportal/core/scholarship"
	"github.com/dienlabs/eduportal/core/user"
	emailsvc "github.com/dienlabs/eduportal/services/email"
	logsvc "github.com/dienlabs/eduportal/services/logger"
	"github.com/dienlabs/eduportal/storage/gridfs"
	"github.com/dienlabs/eduportal/storage/mongodb"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.Conf

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	ctx := context.Background()
	dbClient, db, err := mongodb.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to database: %v", err), err)
	}
	defer func() {
		if err = dbClient.Disconnect(ctx); err != nil {
			logger.Error("failed to disconnect database client", err)
		}
	}()
	if err = mongodb.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("ensuring indexes: %v", err), err)
	}

	// blob storage with local-disk fallback
	blobStore := gridfs.NewStore(db)
	diskStore, err := gridfs.NewDiskStore(conf.Uploads.Dir, conf.Uploads.BaseURL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up uploads dir: %v", err), err)
	}
	uploader := blob.NewUploader(blobStore, diskStore, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(mongodb.NewAccountRepository(db), uploader, mailSvc, logger)
	cwRepo := mongodb.NewCoursewareRepository(db)
	actSvc := activity.NewService(mongodb.NewActivityRepository(db), cwRepo, logger)
	affSvc := affiliation.NewService(mongodb.NewAffiliationRepository(db), usrSvc, uploader, mailSvc, logger)
	newsSvc := news.NewService(mongodb.NewNewsRepository(db), uploader, logger)
	cwSvc := courseware.NewService(cwRepo, uploader, logger)
	examSvc := exam.NewService(mongodb.NewExamRepository(db), actSvc, logger)
	qSvc := question.NewService(mongodb.NewQuestionRepository(db), actSvc, logger)
	schSvc := scholarship.NewService(mongodb.NewScholarshipRepository(db), mongodb.NewApplicationRepository(db), uploader, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Logger:         logger,
		UserSvc:        usrSvc,
		AffiliationSvc: affSvc,
		NewsSvc:        newsSvc,
		CoursewareSvc:  cwSvc,
		ExamSvc:        examSvc,
		QuestionSvc:    qSvc,
		ScholarshipSvc: schSvc,
		ActivitySvc:    actSvc,
		BlobStore:      blobStore,
		Validate:       validate,
		Translator:     translator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
