package models

// Privilege represents the trust level derived from an agent's residence.
// Levels are ordered: user < specialist < root.
type Privilege string

const (
	// PrivilegeUser is the least-privileged trust level.
	PrivilegeUser Privilege = "user"
	// PrivilegeSpecialist is the mid trust level for domain agents.
	PrivilegeSpecialist Privilege = "specialist"
	// PrivilegeRoot is the most-privileged trust level.
	PrivilegeRoot Privilege = "root"
)

// Valid returns true if the privilege is a known value.
func (p Privilege) Valid() bool {
	switch p {
	case PrivilegeUser, PrivilegeSpecialist, PrivilegeRoot:
		return true
	default:
		return false
	}
}

// Rank returns the ordering rank of the privilege (user=0, specialist=1, root=2).
// Unknown privileges rank below user so they can never satisfy a requirement.
func (p Privilege) Rank() int {
	switch p {
	case PrivilegeUser:
		return 0
	case PrivilegeSpecialist:
		return 1
	case PrivilegeRoot:
		return 2
	default:
		return -1
	}
}

// AtLeast returns true if p grants at least the trust of required.
func (p Privilege) AtLeast(required Privilege) bool {
	return p.Rank() >= required.Rank()
}

// Capability represents a specific permission granted wholesale per privilege level.
type Capability string

const (
	// CapabilityReadRepo allows reading repository contents.
	CapabilityReadRepo Capability = "read_repo"
	// CapabilityWriteRepo allows modifying repository contents.
	CapabilityWriteRepo Capability = "write_repo"
	// CapabilityExecuteCode allows running code or commands.
	CapabilityExecuteCode Capability = "execute_code"
	// CapabilityNetworkAccess allows outbound network calls.
	CapabilityNetworkAccess Capability = "network_access"
	// CapabilityMemoryWrite allows persisting to the memory store.
	CapabilityMemoryWrite Capability = "memory_write"
	// CapabilityEscalate allows requesting a higher-privilege grant.
	CapabilityEscalate Capability = "escalate"
	// CapabilityInvokeSubagent allows spawning nested agents.
	CapabilityInvokeSubagent Capability = "invoke_subagent"
)

// Valid returns true if the capability is a known value.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityReadRepo, CapabilityWriteRepo, CapabilityExecuteCode,
		CapabilityNetworkAccess, CapabilityMemoryWrite, CapabilityEscalate,
		CapabilityInvokeSubagent:
		return true
	default:
		return false
	}
}

// AllCapabilities lists every known capability in declaration order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityReadRepo,
		CapabilityWriteRepo,
		CapabilityExecuteCode,
		CapabilityNetworkAccess,
		CapabilityMemoryWrite,
		CapabilityEscalate,
		CapabilityInvokeSubagent,
	}
}

// privilegeCapabilities maps each privilege to its fixed, non-overridable
// capability set. Sets are strictly nested: root ⊇ specialist ⊇ user.
var privilegeCapabilities = map[Privilege][]Capability{
	PrivilegeUser: {
		CapabilityReadRepo,
	},
	PrivilegeSpecialist: {
		CapabilityReadRepo,
		CapabilityWriteRepo,
		CapabilityExecuteCode,
		CapabilityMemoryWrite,
	},
	PrivilegeRoot: {
		CapabilityReadRepo,
		CapabilityWriteRepo,
		CapabilityExecuteCode,
		CapabilityNetworkAccess,
		CapabilityMemoryWrite,
		CapabilityEscalate,
		CapabilityInvokeSubagent,
	},
}

// Capabilities returns the fixed capability set for the privilege.
// The returned slice is a copy; callers may not mutate the grant table.
func (p Privilege) Capabilities() []Capability {
	caps := privilegeCapabilities[p]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// HasCapability returns true if the privilege grants the capability.
func (p Privilege) HasCapability(c Capability) bool {
	for _, granted := range privilegeCapabilities[p] {
		if granted == c {
			return true
		}
	}
	return false
}
