package errors

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Config Errors (E120-E149)
	// ============================================

	"E120": {
		Category:   CategoryConfig,
		Message:    "Config read failed",
		Suggestion: "Check that sharedpaint.json is readable.",
	},
	"E121": {
		Category:   CategoryConfig,
		Message:    "Config parse failed",
		Suggestion: "sharedpaint.json must be valid JSON.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"E141": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Run 'sharedpaint peer --write-config' to create one.",
	},

	// ============================================
	// Protocol Errors (E200-E202)
	// ============================================

	"E200": {
		Category:   CategoryProtocol,
		Message:    "Protocol version mismatch",
		Suggestion: "Every painter on a channel must run the same protocol version.",
	},
	"E201": {
		Category:   CategoryProtocol,
		Message:    "Incompatible state blob",
		Suggestion: "The file was written by a different protocol version or is damaged.",
	},
	"E202": {
		Category: CategoryProtocol,
		Message:  "Malformed packet",
	},

	// ============================================
	// Network and Sync Errors (E203-E206)
	// ============================================

	"E203": {
		Category:   CategoryNetwork,
		Message:    "Connect failed",
		Suggestion: "Check the address and that the remote painter or relay is running.",
	},
	"E204": {
		Category:   CategorySync,
		Message:    "Sync start timeout",
		Suggestion: "Check that the super-peer is reachable and join again.",
	},
	"E205": {
		Category: CategoryTask,
		Message:  "Task refused to execute",
	},
	"E206": {
		Category:   CategoryNetwork,
		Message:    "Not connected",
		Suggestion: "Join a channel or start a server first.",
	},

	// ============================================
	// Storage Errors (E300-E309)
	// ============================================

	"E300": {
		Category: CategoryStorage,
		Message:  "Snapshot store failure",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
