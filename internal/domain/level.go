package domain

import "log/slog"

// LevelCritical is the slog level for events that need an operator right
// away: partial executions and emergency shutdowns.
const LevelCritical = slog.Level(12)
