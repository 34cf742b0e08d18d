// Package eventbus carries publish telemetry from the orchestrator to live
// observers.
//
// Each publish run owns one Bus keyed by its run id. Buses keep the full
// ordered history so an observer that attaches mid-run (a reconnecting
// browser tab, for example) first sees everything that already happened.
// Heartbeats are a transport concern: they keep streaming HTTP connections
// open through proxies and never mix with step events.
//
// Sessions are short-lived and low-cardinality, so the Registry keeps them
// for the process lifetime unless a SessionTTL is configured.
package eventbus
