// Package query implements the cursor handed out by Session reads.
//
// A Cursor pulls points from a producer, projects them onto the requested
// output schema and hands them out in blocks of packed records. When
// compression is requested each block is an independent LZ4 frame; use
// Decompress to recover the packed records.
//
//	cur, err := session.Query(ctx, schema.XYZ(), false)
//	for block, err := range cur.All() {
//		...
//	}
package query
