// Package cache holds parsed weekly tables in memory between pipeline runs.
//
// Entries are keyed by the source description (file path or URL). On every
// Get the source's version token is compared against the cached one and the
// table is reloaded only when it differs, so editing the input file is the
// invalidation signal. Sources that cannot report a version are reloaded once
// the configured max age has elapsed.
//
// Watch adds eager invalidation for local files through fsnotify.
package cache
