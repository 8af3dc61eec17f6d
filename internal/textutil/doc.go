// Package textutil sanitizes user-supplied strings for filesystem use: codec
// names that become cache key tokens and input names that become scratch file
// stems.
package textutil
