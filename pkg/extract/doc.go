// Package extract turns the two redundant result channels of a test run, the
// raw console stream and the rendered results table, into one ordered set of
// canonical test case records.
//
// The line pass is incremental: a LineScanner is fed one line at a time while
// the child process is still running. The table pass runs once on the
// finished artifact. Reconcile merges both under a per-run RunContext.
package extract
