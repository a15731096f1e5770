// Package internal contains the core implementation packages for markupc.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the markupc CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - jsvalue: JavaScript literal encoding, dictionaries, code and regexps
//   - regexpconv: Go regular expressions to JavaScript RegExp literals
//   - optimizer: Hoisting of repeated configuration objects into bindings
//   - callbacks: Callback descriptors turned into generated functions
//   - configtree: The formatter configuration tree, its YAML loader and
//     variant resolution
//   - hints: Feature hints that let the minifier drop unused code
//   - jsruntime: The embedded parser runtime and its slot template
//   - minifier: Pluggable minifiers with a result cache
//   - build: The bundle generator, export surface and build metrics
//   - config: markupc settings loaded through Viper
//   - validation: Path and service URL checks
//   - watcher: File system monitoring with debouncing
//   - server: Preview page, bundle endpoint and live reload
//   - errors: Structured error types shared by every package
//   - logging: Structured logging
//   - version: Build metadata
//
// # Data Flow
//
// A build reads the configuration tree, resolves JS variants, replaces
// callbacks with generated functions, hoists repeated objects, injects the
// result into the runtime template, appends the export surface and hands
// the source to the minifier. The watcher re-runs builds when inputs change
// and the server publishes each finished bundle to connected browsers.
package internal
