package models

// Role identifies a pipeline stage with an output contract. The set is
// closed: contract dispatch switches over these values with no string
// fallthrough.
type Role string

const (
	// RoleSupervisor performs routing analysis of the incoming request.
	RoleSupervisor Role = "supervisor"
	// RoleParser normalizes the request into a structured task.
	RoleParser Role = "parser"
	// RolePlanner synthesizes the step DAG.
	RolePlanner Role = "planner"
	// RoleSynthesizer merges step outputs into the final answer.
	RoleSynthesizer Role = "synthesizer"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleSupervisor, RoleParser, RolePlanner, RoleSynthesizer:
		return true
	default:
		return false
	}
}

// ContractViolation describes agent output that failed its role contract.
type ContractViolation struct {
	// Role is the pipeline stage whose contract was violated.
	Role Role `json:"role"`
	// Expected describes the shape the contract required.
	Expected string `json:"expected"`
	// Received summarizes what the agent actually produced.
	Received string `json:"received"`
	// Recoverable indicates a retry with feedback might succeed.
	Recoverable bool `json:"recoverable"`
	// SuggestedFeedback is appended to the retry prompt, when recoverable.
	SuggestedFeedback string `json:"suggested_feedback,omitempty"`
}
