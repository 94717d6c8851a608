// Package mmfile maps backing files of the frame allocator into memory.
package mmfile
