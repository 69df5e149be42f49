// Package confloader loads layered configuration with koanf.
//
// Sources are applied in order, later ones overriding earlier ones:
// defaults, the YAML file, SLOTKEEP_* environment variables, then
// explicit overrides such as command-line flags. Watcher reports edits
// of the configuration file so hot-reloadable settings can be applied.
package confloader
