// Package meta holds the type graph of a loaded program: modules, type
// definitions, members, and the structural types built from them (arrays,
// pointers, references, custom modifiers, function pointers).
//
// Definitions are shells whose expensive parts (members, nested types,
// attributes and the signature made of base type, interfaces and template
// parameters) arrive through providers and are computed on first access. A
// provider runs at most once per successful population; a failing provider
// leaves the property unpopulated so a later access retries.
//
// All population runs under one process-wide reentrant lock. A provider may
// read other lazy properties, including the one it is filling; such a
// re-entrant read sees whatever the provider has published so far.
package meta
