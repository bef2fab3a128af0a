// Package device acquires a BLE heart-rate strap through BlueZ and keeps
// its notifications flowing.
//
// This package implements the controllers the event loop composes:
//   - Device and characteristic lookup over a fresh directory snapshot
//   - Bounded discovery that always stops the adapter scan on exit
//   - Connection with deadline polling and persistent backoff counters
//   - Notification start and a single path-scoped signal match
//
// Every controller talks to the daemon through the Client and Watcher
// interfaces and reads time through Clock, so tests can drive them with a
// fake daemon and a fake clock.
package device
