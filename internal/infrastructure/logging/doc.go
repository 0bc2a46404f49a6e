// Package logging provides structured logging for the WeMo gateway.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/wemogw.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 5
//	    max_age: 28      # days
//	    compress: false
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("listening", "port", 6013)
//	logger.Error("failed to connect", "error", err)
//
// Never log the channel auth key or broker credentials.
package logging
