// Package workspace describes the on-disk layout of a report working
// directory and validates that every artifact a bundle needs is present
// before anything is scored, rewritten or archived.
package workspace
