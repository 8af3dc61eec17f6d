// Package preflight provides readiness checks for the external tools and
// filesystem paths vdcrpt depends on.
//
// The CLI "vdcrpt doctor" command renders RunAll's results. Each check is
// independent, so a missing ffprobe does not hide a read-only cache
// directory.
package preflight
