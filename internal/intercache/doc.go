// Package intercache stores intermediate transcodes keyed by input content and
// codec pair, so repeated corruption of the same source skips the first
// ffmpeg pass.
//
// # Publishing
//
// Entries are produced into a hidden ".partial" file in the cache directory
// and renamed into place only once they are complete and non-empty. Readers
// therefore never observe a half-written entry. A per-key lock file
// serializes producers of the same key across processes; the loser of the
// race finds the entry already published and reuses it.
//
// # Size Management
//
// The cache enforces two constraints: a configurable size budget
// (cache.max_gib) and a 20% free-space floor on the underlying volume. After
// each publish the manager prunes least recently used entries until both hold,
// never removing the entry it just published. Manual pruning is available via
// `vdcrpt cache prune`.
package intercache
