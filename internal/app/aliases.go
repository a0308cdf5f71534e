package app

import (
	"time"

	"remindbot/internal/config"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport/telegram/router"
)

// Wiring aliases: internal/app reads against one surface instead of
// importing config, supervisor and router piecemeal.
type (
	Config        = config.Config
	ConfigManager = config.ConfigManager

	Supervisor         = supervisor.Supervisor
	SupervisorRegistry = router.SupervisorRegistry

	Services       = router.Services
	CommandManager = router.CommandManager
)

var (
	NewConfigManager      = config.NewConfigManager
	SummarizeConfigChange = config.SummarizeConfigChange

	NewSupervisor         = supervisor.NewSupervisor
	WithLogger            = supervisor.WithLogger
	WithCancelOnError     = supervisor.WithCancelOnError
	NewSupervisorRegistry = router.NewSupervisorRegistry

	NewCommandManager = router.NewCommandManager
)

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}
