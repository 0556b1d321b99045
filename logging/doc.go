// Package logging defines the structured logging surface used across ATLAS.
//
// Two levels of abstraction are provided: the minimal Logger interface that
// every component accepts via options, and AtlasLogger, an slog-backed
// implementation with contextual cloning (WithComponent, WithTask) plus
// domain helpers for tool, model and loop telemetry. NoOpLogger keeps tests
// and minimal builds quiet.
package logging
