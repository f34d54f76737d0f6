package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/raysh454/fastscan/internal/apiclient"
	"github.com/raysh454/fastscan/internal/cli"
	"github.com/raysh454/fastscan/internal/controller"
	"github.com/raysh454/fastscan/internal/identity"
	"github.com/raysh454/fastscan/internal/localstate"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/webclient"
)

// Application is the global runtime state container.
// It holds config, parsed CLI args and the services shared across commands:
// the backend client, the local state store and the page controller. Pass
// Application around rather than using package-level variables.
type Application struct {
	Config *Config
	Args   *cli.CLIArgs

	Logger     logging.Logger
	API        *apiclient.Client
	Local      *localstate.Store
	Controller *controller.Controller
	Visitor    identity.Visitor

	web webclient.WebClient
}

// NewApplication opens the local state, loads or creates the visitor identity
// and connects the backend client. A -reset flag clears the rating state
// before anything reads it.
func NewApplication(ctx context.Context, cfg *Config, args *cli.CLIArgs, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if args == nil {
		args = &cli.CLIArgs{}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	statePath, err := expandPath(cfg.Client.StatePath)
	if err != nil {
		return nil, fmt.Errorf("expanding state path: %w", err)
	}
	local, err := localstate.Open(filepath.Clean(statePath), logger)
	if err != nil {
		return nil, fmt.Errorf("opening local state: %w", err)
	}

	if _, err := local.ApplyResetParam(ctx, resetQuery(args.Reset)); err != nil {
		local.Close()
		return nil, err
	}

	visitor, err := identity.LoadOrCreate(ctx, local, nil)
	if err != nil {
		local.Close()
		return nil, err
	}

	// The backend is a JSON API, so the plain HTTP client is always used here
	// regardless of fetch.client.
	wc, err := webclient.NewNetHTTPClient(webclient.Config{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Client.UserAgent,
	}, logger, nil)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("creating webclient: %w", err)
	}

	api := apiclient.New(cfg.Client.BackendURL, wc, logger,
		apiclient.WithVisitorID(visitor.ID),
		apiclient.WithUserAgent(cfg.Client.UserAgent))

	logger.Debug("application ready",
		logging.Field{Key: "backend", Value: cfg.Client.BackendURL},
		logging.Field{Key: "visitor", Value: visitor.Name})

	return &Application{
		Config:     cfg,
		Args:       args,
		Logger:     logger,
		API:        api,
		Local:      local,
		Controller: controller.New(api, local, visitor, logger),
		Visitor:    visitor,
		web:        wc,
	}, nil
}

// resetQuery renders the -reset flag as the reset query parameter the
// local store understands.
func resetQuery(reset bool) string {
	return url.Values{"reset": {strconv.FormatBool(reset)}}.Encode()
}

// Shutdown stops background work and releases the local store.
func (a *Application) Shutdown() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Debug("application shutdown initiated")

	a.Controller.Close()
	var errs []error
	if a.web != nil {
		errs = append(errs, a.web.Close())
	}
	if a.Local != nil {
		errs = append(errs, a.Local.Close())
	}
	return errors.Join(errs...)
}
