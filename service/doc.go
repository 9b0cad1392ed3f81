// Package service is the only write entry point into the matching
// core. It owns one single-threaded actor per instrument: every
// submission, cancellation, depth read, mark-price update, and
// day-expiry signal for a ticker flows through that actor's mailbox,
// giving each instrument a single total order of mutations while
// different instruments proceed in parallel.
package service
