package router

import (
	"remindbot/internal/config"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
)

// Aliases below re-export the types command handlers see on a Request, so
// handler packages stay on the router import alone instead of pulling in
// config, supervisor and scheduler themselves.

type (
	Config        = config.Config
	ConfigManager = config.ConfigManager
	Supervisor    = supervisor.Supervisor
)

var (
	NewSupervisor     = supervisor.NewSupervisor
	WithLogger        = supervisor.WithLogger
	WithCancelOnError = supervisor.WithCancelOnError

	// restart policy knobs for the dispatch worker pool
	WithRestartBackoff    = supervisor.WithRestartBackoff
	WithPublishFirstError = supervisor.WithPublishFirstError
	WithStopOnCleanExit   = supervisor.WithStopOnCleanExit
)

// Snapshot mirrors the scheduler's operational snapshot for /status style
// commands.
type Snapshot = scheduler.Snapshot

// Schedule parsing is shared between the router and command handlers.
type ParsedSchedule = scheduler.ParsedSpec

const (
	ScheduleCron     = scheduler.SpecCron
	ScheduleInterval = scheduler.SpecInterval
)

func ParseSchedule(raw string) (ParsedSchedule, error) {
	return scheduler.ParseSchedule(raw)
}
