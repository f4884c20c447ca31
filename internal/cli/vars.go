package cli

import (
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/internal/integration"
	"github.com/valter-silva-au/todo/internal/observability"
	"github.com/valter-silva-au/todo/internal/web"
)

// Service instances, set during app initialization in app.go.
var (
	Store     core.TaskStore
	BasePath  string
	Reminders core.ReminderScheduler
	Voice     integration.VoiceCapture
)

// HTTP API settings used by the serve command.
var (
	Stores        web.StoreProvider
	ServerOptions web.Options
	ServerAddr    string
)

// Observability service instances.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
