/*
Webapi is the executable for the Selah web server.
It connects to the database and to the external services it proxies (language model, Bible text provider, auth
provider), then serves every API route from a single web server.

Usage:

	webapi [flags]

Flags and configurations are handled automatically by the code in `load-configuration.go`.

Return values (exit codes):

	0
		The program ended successfully (no errors, stopped by signal)

	> 0
		The program ended due to an error

Missing API keys for the language model or the Bible text provider stop the program at start.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"github.com/silktrader/selah/pkg/auth"
	"github.com/silktrader/selah/pkg/bible"
	"github.com/silktrader/selah/pkg/commentary"
	"github.com/silktrader/selah/pkg/insights"
	"github.com/silktrader/selah/pkg/likes"
	"github.com/silktrader/selah/pkg/readings"
	"github.com/silktrader/selah/pkg/reflections"
	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage"
	"github.com/silktrader/selah/pkg/themes"
	"github.com/silktrader/selah/pkg/users"
)

// main is the program entry point. The only purpose of this function is to call run() and set the exit code if there is
// any error
func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error: ", err)
		os.Exit(1)
	}
}

// run executes the program. The body of this function performs the following steps:
// * reads the configuration
// * creates and configure the logger
// * connects to any external resources (database, language model, Bible and auth providers)
// * registers the handlers of every package on a rest.Engine
// * starts the web server
// * waits for any termination event: SIGTERM signal (UNIX), non-recoverable server error, etc.
// * closes the web server
func run() error {
	// Load Configuration and defaults
	cfg, err := loadConfiguration()
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return err
	}

	// Init logging
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.Infof("application initializing")

	// external clients come first, for an immediate exit when keys are missing
	ctx := context.Background()
	completer, err := commentary.NewCompleter(ctx, commentary.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		logger.WithError(err).Error("error configuring the language model")
		return fmt.Errorf("configuring the language model: %w", err)
	}

	bibleClient, err := bible.NewClient(bible.Config{
		APIKey:  cfg.Bible.APIKey,
		BaseURL: cfg.Bible.BaseURL,
		Timeout: cfg.Bible.Timeout,
	})
	if err != nil {
		logger.WithError(err).Error("error configuring the Bible provider")
		return fmt.Errorf("configuring the Bible provider: %w", err)
	}

	goTrue, err := auth.NewGoTrueClient(auth.GoTrueConfig{
		BaseURL: cfg.Auth.URL,
		AnonKey: cfg.Auth.AnonKey,
		Timeout: cfg.Auth.Timeout,
	})
	if err != nil {
		logger.WithError(err).Error("error configuring the auth provider")
		return fmt.Errorf("configuring the auth provider: %w", err)
	}
	auth.SetSecureCookies(cfg.SecureCookies)

	// initialise database before registering handlers for an immediate exit in case of issues
	db, err := storage.New(logger, storage.Config{Driver: cfg.DB.Driver, DSN: cfg.DB.DSN})
	if err != nil {
		logger.WithError(err).Error("error initialising storage")
		return fmt.Errorf("error while initialising storage: %w", err)
	}
	defer db.Close()

	// Start (main) API server
	logger.Info("initializing API server")

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	e, err := rest.New(rest.Config{
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Error("error creating the API server instance")
		return fmt.Errorf("creating the API server instance: %w", err)
	}

	// setup handlers
	var usersRepository = users.NewRepository(db)
	var authenticate = auth.Auth(goTrue)

	auth.RegisterHandlers(e, auth.NewHandlers(goTrue, users.AuthEnsurer(usersRepository), cfg.SiteURL))
	users.RegisterHandlers(e, usersRepository, authenticate)
	readings.RegisterHandlers(e, readings.NewStore(db), authenticate)
	reflections.RegisterHandlers(e, reflections.NewStore(db), authenticate)
	likes.RegisterHandlers(e, likes.NewStore(db), authenticate)
	themes.RegisterHandlers(e, themes.NewStore(db), authenticate)
	insights.RegisterHandlers(e, insights.NewStore(db), authenticate)
	bible.RegisterHandlers(e, bibleClient)
	commentary.RegisterHandlers(e, commentary.NewService(completer), completer, cfg.Commentary.Fallback)

	// recover from panics, log every request and apply the CORS policy
	handler := handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(cfg.Debug))(e.Handler())
	accessLog := logger.WriterLevel(logrus.InfoLevel)
	defer accessLog.Close()
	handler = handlers.CombinedLoggingHandler(accessLog, handler)
	handler = applyCORSHandler(handler, cfg.Web.AllowedOrigins)

	// create the API server
	server := http.Server{
		Addr:              cfg.Web.APIHost,
		Handler:           handler,
		ReadTimeout:       cfg.Web.ReadTimeout,
		ReadHeaderTimeout: cfg.Web.ReadTimeout,
		WriteTimeout:      cfg.Web.WriteTimeout,
	}

	// Start the service listening for requests in a separate goroutine
	go func() {
		logger.Infof("API listening on %s", server.Addr)
		serverErrors <- server.ListenAndServe()
		logger.Infof("stopping API server")
	}()

	// Waiting for shutdown signal or POSIX signals
	select {
	case err := <-serverErrors:
		// Non-recoverable server error
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("signal %v received, start shutdown", sig)

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and load shed.
		err = server.Shutdown(ctx)
		if err != nil {
			logger.WithError(err).Warning("error during graceful shutdown of HTTP server")
			err = server.Close()
		}

		if err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
