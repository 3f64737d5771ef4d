// Package manifest parses memories history exports into memory records.
//
// Two export formats are supported:
//   - memories_history.html, one table row per memory
//   - memories_history.json, a "Saved Media" array
//
// # Identities
//
// A memory is identified by the mid parameter of its download link,
// lowercased. When the link also carries a different sid, it is kept as an
// alias so files named after either id find the record.
//
// # Usage
//
//	records, err := manifest.NewParser(log).Load("memories_history.html")
//	index := model.IndexRecords(records)
//
// The dto subpackage holds the JSON shapes and the field parsers shared by
// both formats.
package manifest
