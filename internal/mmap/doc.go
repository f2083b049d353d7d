// Package mmap provides read-only memory-mapped access to local blobs.
//
// The local blob store maps source files and index chunks instead of
// copying them through kernel buffers:
//
//	m, err := mmap.Open("/data/autzen.grp")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix uses mmap(2) and madvise(2); Windows uses MapViewOfFile with
// advice as a no-op. Mappings are safe for concurrent reads, Close is
// idempotent, and callers must not touch Bytes() after Close returns.
package mmap
