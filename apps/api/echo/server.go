package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
)

type (
	ServerDeps struct {
		Logger         core.Logger
		UserSvc        *user.Service
		AffiliationSvc *affiliation.Service
		NewsSvc        *news.Service
		CoursewareSvc  *courseware.Service
		ExamSvc        *exam.Service
		QuestionSvc    *question.Service
		ScholarshipSvc *scholarship.Service
		ActivitySvc    *activity.Service
		BlobStore      blob.Store
		Validate       *validator.Validate
		Translator     ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errCh    chan error
		shutCh   chan os.Signal
		shutting bool
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:   deps,
		app:    echo.New(),
		errCh:  make(chan error, 1),
		shutCh: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutCh, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !core.Conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = core.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	api := s.app.Group("/api")
	auth := authRequired()

	registerUserAPI(api, auth, s.deps.UserSvc, s.deps.Validate)
	registerAffiliationAPI(api, auth, s.deps.AffiliationSvc, s.deps.Validate)
	registerNewsAPI(api, auth, s.deps.NewsSvc, s.deps.Validate)
	registerCoursewareAPI(api, auth, s.deps.CoursewareSvc, s.deps.ActivitySvc, s.deps.Validate)
	registerExamAPI(api, auth, s.deps.ExamSvc, s.deps.Validate)
	registerQuestionAPI(api, auth, s.deps.QuestionSvc, s.deps.Validate)
	registerScholarshipAPI(api, auth, s.deps.ScholarshipSvc, s.deps.Validate)
	registerActivityAPI(api, auth, s.deps.ActivitySvc, s.deps.Validate)
	registerFilesAPI(api, s.deps.BlobStore)
}

func (s *server) Start() {
	if err := s.app.Start(core.Conf.Address()); err != nil && err != http.ErrServerClosed {
		s.errCh <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errCh }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutCh }

func (s *server) signalShutdown() {
	if !s.shutting {
		s.shutting = true
		s.shutCh <- syscall.SIGTERM
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}
