// Package replacer moves the working directory of running processes.
//
// A CwdReplacer is built in two phases. Prepare discovers every process whose
// working directory lies under a detection path and attaches to each of them,
// freezing them in place. Run then asks every attached process, in discovery
// order, to change its working directory to the new path. Close releases the
// processes and must always be called, whether or not Run was.
//
// Failures that concern a single process while preparing (it exited, it could
// not be attached) never abort construction; they are logged and recorded in
// the procmeta ledger. Only failing to list the process table is fatal.
package replacer
