// Package planner turns discovered assets into an ordered, dependency-linked
// list of actions.
//
// Build is a pure function: it reads nothing from disk and the same input
// always produces the same plan, which is what makes a dry run show exactly
// what a real run would do.
//
//	plan := planner.Build(planner.Input{
//	    Assets:       scanned.Assets,
//	    Pairing:      pairing.Resolve(scanned.Assets),
//	    Records:      model.IndexRecords(records),
//	    Capabilities: detector.Detect(ctx),
//	    OutputDir:    "/out",
//	    WorkDir:      "/out/.work",
//	})
//	_ = plan.Render(os.Stdout)
//
// Action inputs are Sources: either a literal path or the output of an
// earlier action. An action's DependsOn always points to earlier actions.
package planner
