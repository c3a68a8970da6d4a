package restore

// AssembledStage is one stage's resolved bytes and load address.
type AssembledStage struct {
	Origin uint16
	Bytes  []byte
}

// Stages holds every assembled piece of the erasure chain once BuildStages
// finishes: the Loader (stage L), Block 9, Block 10, and the final stage.
// StackRisk is carried alongside for the Driver (package convert) to
// surface the final-stage-placement diagnostic to the caller.
type Stages struct {
	Loader  AssembledStage
	Block9  AssembledStage
	Block10 AssembledStage
	Final   AssembledStage

	LoaderOrigin uint16

	// FootprintEnd is the first address above the Loader's reserved
	// footprint. [LoaderOrigin, FootprintEnd) holds the Loader's own code
	// and its convergence slack, the one range the restore never rewrites:
	// the main-RAM restore resumes at FootprintEnd.
	FootprintEnd uint16

	StackRisk bool
}
