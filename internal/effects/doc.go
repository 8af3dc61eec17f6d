// Package effects implements the byte-level corruption operators applied to
// an intermediate video container.
//
// An Effect is a plain value (kind plus parameters) rather than a closure, so
// effects can be validated eagerly, printed, parsed from flags or TOML, and
// stored in run history. Apply is the single dispatch point; it takes the
// buffer and returns the buffer, resized when the effect grows or shrinks it,
// in the style of append.
//
// Every region-based effect draws its region through RandomSlice, which never
// touches the first MinOffset bytes so container headers survive. All entropy
// comes from the caller-supplied Rand, which makes outcomes reproducible from
// a seed.
package effects
