// Package logging configures the process slog logger. By default records at
// warn and above go to stderr; --debug (or logging.file) adds a JSON log in
// ~/.tinyrerank/logs/ that rotates by size.
package logging
