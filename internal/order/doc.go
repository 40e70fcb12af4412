// Package order computes the execution order of initializers.
//
// Every initializer declares the type it initializes and the types of the
// arguments it passes to that target. From those declarations the package
// infers "A requires B" edges (an argument of A is satisfied by the target of
// B, directly, through an implemented interface, or through a provider of the
// argument type), merges user InitAfter overrides, breaks cycles with a
// constructibility heuristic, sorts the graph dependencies-first and assigns
// integer priorities where lower values initialize earlier.
//
// Priorities are renumbered conservatively: an existing priority that is still
// consistent with the computed order is kept, so recomputing the table after an
// unrelated change does not churn values that other tooling may have persisted.
package order
