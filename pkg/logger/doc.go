// Package logger builds the gateway's log/slog loggers: JSON in production,
// text elsewhere, with the environment attached to every record.
package logger
