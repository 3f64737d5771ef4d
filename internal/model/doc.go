// Package model defines the core data structures shared by every stage of
// the memories pipeline.
//
// # Assets
//
// RawAsset is a single discovered input: a loose file, a member of a zip
// archive, or a remote item listed in a manifest. Its Identity ties the
// main file and its overlay together:
//
//	identity, role := model.ParseName("3F2504E0-4F89-11D3-9A0C-0305E82C3301-main.mp4")
//	// identity = "3f2504e0-4f89-11d3-9a0c-0305e82c3301", role = model.RoleMain
//
// # Records
//
// MemoryRecord carries the capture time and location parsed from the export
// manifest. RecordIndex looks records up by identity (first record wins).
//
// # Outcomes
//
// Every planned action settles exactly once as an Outcome:
//
//	model.Succeeded("/out/abc_combined.jpg")
//	model.Skipped(model.ReasonMetadataAbsent)
//	model.Failed(err) // kind taken from *model.Error, see KindOf
//
// # Errors
//
// Leaf failures are wrapped in *Error with one of four kinds: TransientIO,
// MalformedInput, ResourceUnavailable and DependencyFailed.
package model
