// Package util provides small generic helpers shared across the
// module: pointer helpers, zero-value coalescing, and size parsing
// for human-readable byte counts.
package util
