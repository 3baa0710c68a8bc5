// Package state holds the in-memory session event log and the on-disk
// transcript export written alongside it.
package state
