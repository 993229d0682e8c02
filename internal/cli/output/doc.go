// Package output renders authmesh-cli results as a table, JSON or YAML.
//
// Table headers come from json tags, so the three formats use the same
// field names. Fields tagged `table:"wide"` only show with --wide and
// `table:"-"` never shows.
package output
