// Package logging provides structured logging configuration for burrow.
//
// This package wraps log/slog to provide consistent logging across all
// burrow components. It supports configurable log levels and output formats.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("tunnel connected", "url", publicURL)
//	logger.Error("backend request failed", "error", err)
//
// # Output Formats
//
//   - Text: Human-readable format for development
//   - JSON: Structured format for log aggregation systems
//
// To log to more than one destination (for example stderr plus a file),
// compose handlers with MultiHandler:
//
//	h := logging.NewMultiHandler(
//	    logging.NewHandler(logging.Config{Format: logging.FormatText}),
//	    logging.NewHandler(logging.Config{Format: logging.FormatJSON, Output: f}),
//	)
//	logger := slog.New(h)
//
// # Integration
//
// Components should accept a *slog.Logger in their constructor or via a
// setter. If no logger is provided, use logging.Nop() for a no-op logger.
package logging
