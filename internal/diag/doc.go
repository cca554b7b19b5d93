// Package diag defines the diagnostic model shared by the loaders, the generic
// engine and the CLI.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity: Info, Warning or Error
//   - Code: compact numeric identifier with a stable ID such as "GEN2002"
//   - Subject: the entity the finding is about, usually a type or assembly name
//   - Message: short human oriented text
//   - Notes: optional extra context, each with its own subject
//
// Producers emit through a Reporter (BagReporter, DedupReporter,
// NopReporter) and never format or print. Rendering lives in Format and in
// the CLI.
//
// Many producers run concurrently (warmup workers, instantiations from several
// goroutines), so Bag is safe for concurrent use.
package diag
