// Package internal contains the core implementation packages for quill.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the quill template engine and CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - block: compiled template tree of blocks and literal/tag nodes
//   - cache: mtime-validated cache of compiled trees with optional watching
//   - config: configuration loading with validation and defaults
//   - engine: template instances, entities, and the rendering pipeline
//   - errors: structured template errors and error collection
//   - expr: condition evaluation for conditional tags
//   - loader: template file resolution across configured roots
//   - logging: structured logging built on log/slog
//   - plugins: modifier and function registration and dispatch
//   - resolve: dot-path parsing and reflective value navigation
//   - scanner: single-pass source parsing into block trees
//
// # Dependency Direction
//
// The engine package sits at the top and wires the rest together.
// block, errors, and resolve are leaf packages imported throughout;
// no internal package imports engine.
package internal
