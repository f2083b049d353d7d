// Package pipeline constructs point-cloud reader stages.
//
// A Factory is a registry of reader drivers keyed by name ("readers.text",
// "readers.raw"). Stage construction through a Factory is not safe for
// concurrent use: hosts share one Factory between many Sessions and
// serialize CreateReader calls with a lock they own. Reading from a
// constructed Stage is safe without that lock.
//
// Built-in drivers:
//
//	readers.text  .txt, .csv  header line of dimension names, one point per line
//	readers.raw   .grp        JSON header followed by packed little-endian points,
//	                          optionally zstd-compressed
package pipeline
