// Package output renders slotkeep-cli results as tables, JSON or YAML.
//
// Result types implement Tabular to control their table form; JSON and
// YAML use the types' struct tags.
package output
