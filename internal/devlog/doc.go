// Package devlog implements storage and hybrid retrieval of development logs.
//
// A log is written to the LogStore first and only then embedded and
// upserted into the VectorIndex. The log's IndexStatus (PENDING, INDEXED,
// DEGRADED) records whether a vector exists, so the two stores may diverge
// temporarily without producing wrong search results: searches drop vector
// hits that have no log behind them and re-check every filter on the
// hydrated log.
package devlog
