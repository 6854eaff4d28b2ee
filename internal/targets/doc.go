// Package targets persists publish targets and their state machine in
// SQLite. Every mutation during dispatch goes through the compare-and-swap
// Transition primitive, making the store the single source of truth shared by
// the scheduler, the upload manager, and operator commands.
package targets
