package model

// Keys of the run-wide universal values published once at setup.
const (
	UniversalThreads         = "threads"
	UniversalCheckerDelay    = "checker_delay"
	UniversalWorkDir         = "workdir"
	UniversalFinishedDir     = "finished_dir"
	UniversalFormat          = "format"
	UniversalMapper          = "mapper"
	UniversalAssembler       = "assembler"
	UniversalAssemblyTimeout = "assembly_timeout"
)
