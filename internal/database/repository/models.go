package repository

// Preference represents a preferences row.
type Preference struct {
	Key   string
	Value string
}

// Well-known preference keys.
const (
	PrefInstallID = "install.id"
	PrefTheme     = "ui.theme"
	PrefLastRun   = "app.last_run"
)

// Task run statuses.
const (
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
)

// TaskRun represents a task_runs row.
type TaskRun struct {
	ID         int64
	Name       string
	Status     string
	Error      string
	StartedAt  string
	FinishedAt string
}

// StartupEntry represents a startup_history row.
type StartupEntry struct {
	AttemptID  string
	Outcome    string
	Detail     string
	RecordedAt string
}
