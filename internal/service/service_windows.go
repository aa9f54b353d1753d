//go:build windows

package service

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows/svc"
)

// Interactive reports whether the process runs outside the service control
// manager.
func Interactive() bool {
	isService, err := svc.IsWindowsService()
	return err != nil || !isService
}

// Run hosts r under the service control manager when started as the Windows
// service name, and interactively otherwise.
func Run(ctx context.Context, name string, r Runnable, logger zerolog.Logger) error {
	if Interactive() {
		return RunInteractive(ctx, r, logger)
	}

	h := &handler{
		ctx:    ctx,
		r:      r,
		logger: logger.With().Str("component", "service").Str("service", name).Logger(),
	}
	if err := svc.Run(name, h); err != nil {
		return err
	}
	return h.err
}

type handler struct {
	ctx    context.Context
	r      Runnable
	logger zerolog.Logger
	err    error
}

func (h *handler) Execute(args []string, requests <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	const accepts = svc.AcceptStop | svc.AcceptShutdown

	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	if err := h.r.Start(ctx); err != nil {
		h.logger.Error().Err(err).Msg("Service failed to start")
		h.err = err
		return true, 1
	}

	status <- svc.Status{State: svc.Running, Accepts: accepts}
	h.logger.Info().Msg("Service running")

	for {
		select {
		case req := <-requests:
			switch req.Cmd {
			case svc.Interrogate:
				status <- req.CurrentStatus
			case svc.Stop, svc.Shutdown:
				h.logger.Info().Msg("Stop requested by service control manager")
				status <- svc.Status{State: svc.StopPending}
				h.r.Stop()
				return false, 0
			default:
				h.logger.Warn().Uint32("cmd", uint32(req.Cmd)).Msg("Unexpected service control request")
			}
		case <-ctx.Done():
			status <- svc.Status{State: svc.StopPending}
			h.r.Stop()
			return false, 0
		}
	}
}
