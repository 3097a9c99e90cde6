// (c) Copyright Spanlight Inc. 2023

package spanlight

import (
	"context"

	f "github.com/looplab/fsm"
)

// IntegrationName identifies the middleware integration within an integration
// registry.
const IntegrationName = "middleware"

const (
	eInstall = "install"
	eAbort   = "abort"
)

// Options holds the configuration of a middleware Integration
type Options struct {
	// App is the application whose middleware registration entry point will
	// be instrumented. A missing application is reported as a configuration
	// error during setup and instrumentation is skipped.
	App Registrar
	// Logger overrides the package logger for this integration instance
	Logger LeveledLogger
}

// Integration instruments the middleware registration entry point of an
// application, so that every registered middleware records its execution as a
// child span of the request transaction.
type Integration struct {
	app    Registrar
	logger LeveledLogger
	state  *f.FSM
}

// NewIntegration creates a middleware Integration for the application
// provided via opts
func NewIntegration(opts Options) *Integration {
	lg := opts.Logger
	if lg == nil {
		lg = Logger()
	}

	return &Integration{
		app:    opts.App,
		logger: lg,
		state: f.NewFSM(
			"uninstalled",
			f.Events{
				{Name: eInstall, Src: []string{"uninstalled"}, Dst: "installed"},
				{Name: eAbort, Src: []string{"uninstalled"}, Dst: "aborted"},
			},
			f.Callbacks{},
		),
	}
}

// Name returns the stable identifier of this integration
func (in *Integration) Name() string {
	return IntegrationName
}

// SetupOnce installs the registration interceptor on the application. The
// installation happens at most once per Integration instance: repeated calls
// are no-ops, so middleware never gets double-wrapped. If no application was
// provided, the configuration error is logged and the application keeps
// working without middleware tracing.
func (in *Integration) SetupOnce() {
	if in.app == nil {
		if err := in.state.Event(context.Background(), eAbort); err != nil {
			return
		}

		in.logger.Error("no application instance provided to the middleware integration, skipping instrumentation")
		return
	}

	if err := in.state.Event(context.Background(), eInstall); err != nil {
		in.logger.Debug("middleware integration setup requested more than once: ", err)
		return
	}

	in.app.SetRegisterFunc(InstrumentRegister(in.app.RegisterFunc()))
}
