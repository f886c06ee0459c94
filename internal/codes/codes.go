package codes

// CargoExitCodes maps cargo exit codes to their descriptions
var CargoExitCodes = map[int]string{
	0:   "Success",
	1:   "Command-line usage error",
	101: "Compilation failed",
	127: "Command not found",
	130: "Interrupted",
	137: "Killed",
	143: "Terminated",
}

// CargoExitMessage returns the description for a given cargo exit code, or a generic message if unknown
func CargoExitMessage(code int) string {
	if msg, ok := CargoExitCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}

// Process exit codes reported by the ghostbind CLI, one per error kind
const (
	ExitOK                = 0
	ExitGeneric           = 1
	ExitUnsupportedTarget = 10
	ExitToolchainMissing  = 11
	ExitBuildFailed       = 12
	ExitArtifactNotFound  = 13
	ExitHeaderFailed      = 14
	ExitManifestWrite     = 15
	ExitCancelled         = 130
)
