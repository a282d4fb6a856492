package pipeline

// Seed registers the full set of approved pipelines every component that
// holds a Registry must agree on byte-for-byte: the Verifier recomputes each
// pipeline's canonical hash from its own copy (spec.md §4.1 step 4), so its
// registry and the DAP's/PI's must be built by the exact same calls, not
// independently assembled ones that happen to look alike.
func Seed(reg *Registry) {
	reg.Set("get_bp", BuildGetFieldPipeline("patients", "authorizations", "bloodPressure"))
	reg.Set("get_height", BuildGetFieldPipeline("patients", "authorizations", "height"))
	reg.Set("is_bp_above_mean", BuildIsAboveMeanPipeline("populationStats", "bloodPressure"))
}
