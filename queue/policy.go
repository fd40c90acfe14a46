package queue

import "fmt"

// Policy decides when pending tasks are handed to workers.
type Policy int

const (
	// AfterAdd starts one dispatch attempt for every successful Submit.
	AfterAdd Policy = iota
	// CycleOne runs a single periodic dispatcher that claims at most one
	// task per tick.
	CycleOne
	// CycleMany runs a group of periodic dispatchers, each claiming at most
	// one task per tick. Requires WithGroupSize.
	CycleMany
)

var policyNames = map[Policy]string{
	AfterAdd:  "after-add",
	CycleOne:  "async-cycle-one",
	CycleMany: "async-cycle-many",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Periodic reports whether the policy dispatches from timers.
func (p Policy) Periodic() bool {
	return p == CycleOne || p == CycleMany
}

// ParsePolicy maps a policy name ("after-add", "async-cycle-one",
// "async-cycle-many") to its Policy.
func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown work policy %q", ErrInvalidConfig, name)
}
