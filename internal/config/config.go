package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Tasks  TasksConfig  `mapstructure:"tasks"  validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// TasksConfig contains the task lifecycle engine tunables. The values are
// validated here once; the engine receives them as already-valid numbers.
type TasksConfig struct {
	// MaxConcurrentTasks caps simultaneous task execution.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks" validate:"required,gt=0"`

	// TimeoutSeconds bounds a single task's execution time.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"required,gt=0"`

	// TaskRetentionHours is how long terminal task records are kept.
	// Zero disables expiry-based eviction.
	TaskRetentionHours int `mapstructure:"task_retention_hours" validate:"gte=0"`

	// MaxTasksCount caps how many task records are retained in memory.
	MaxTasksCount int `mapstructure:"max_tasks_count" validate:"required,gt=0"`

	// SweepIntervalMinutes is how often the retention sweeper runs.
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes" validate:"required,gt=0"`
}
