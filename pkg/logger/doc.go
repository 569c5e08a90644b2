// Package logger is a small factory around log/slog with json/text output,
// environment presets, and shared attribute helpers so the same keys are
// used for user IDs and errors across the application.
package logger
