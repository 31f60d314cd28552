// Package logtail reads the tail of pulse's own log file for the Logs view.
//
// # Reading
//
// Tail scans the file once, parses every line and keeps the newest matches
// of a Filter, so the view can show one component's records or only
// warnings without the rest crowding them out of the window:
//
//	entries, err := logtail.Tail(cfg.LogFile, 400, logtail.Filter{Component: "realtime", MinLevel: "WARN"})
//
// A missing file yields nil, nil; the log may not exist until the first
// record is written.
//
// # Parsing
//
// pulse logs through slog.TextHandler, which writes logfmt-style lines:
//
//	time=2026-10-14T09:30:00.123Z level=INFO msg="subscription open" component=live
//
// Parse splits such a line into time, level, message and the remaining
// attributes. Quoted values are unquoted with strconv rules. Anything that
// does not parse (a panic trace, say) is returned with Message set to the
// raw line, so the UI can still show it.
package logtail
