package sandbox

import "fmt"

// Mount is a host:container bind spec, matching the binding map the
// original driver passes to its run step.
type Mount struct {
	Host      string
	Container string
}

// binds renders mounts as Docker's "host:container" bind strings.
func binds(mounts []Mount) []string {
	out := make([]string, len(mounts))
	for i, m := range mounts {
		out[i] = fmt.Sprintf("%s:%s", m.Host, m.Container)
	}
	return out
}
