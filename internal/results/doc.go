// Package results reads and rewrites the results CSV. A Table keeps the
// original column order and every original value, so a rewrite only ever
// appends columns and fills in their values.
package results
