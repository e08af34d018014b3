package sandbox

import "fmt"

// ephemeralName is the name given to a container created for a single
// run, scoped by the owning driver's name so two drivers (e.g. the
// hybrid stage's fuzzer and its SymCC sibling) never collide.
func ephemeralName(tag, driverName string) string {
	return fmt.Sprintf("%s-ephemeral-%s", tag, driverName)
}

// siblingName derives the name of a duplicate driver, used when a stage
// needs a second, independently-tracked Docker session (the hybrid
// stage's side fuzzing process).
func siblingName(name string) string {
	return name + "-sideline"
}
