package registry

import "path/filepath"

// DockedPacket is the view of a packet prepared for one pipeline stage
// running inside a container: host-side paths under the registry root,
// and the mount point the stage expects to see them at inside the
// container. Stage code reads/writes only the container-visible paths;
// the sandbox driver is responsible for actually bind-mounting host
// paths to them.
type DockedPacket struct {
	Packet Packet
	Stage  string

	// HostDir is <root>/<hash>, the packet's own directory.
	HostDir string
	// HostOutputDir is <root>/<hash>/output/<stage>, created fresh for
	// each run so repeated runs of the same stage never see stale output.
	HostOutputDir string

	// Mount is the container path the packet directory is bound to.
	Mount string
}

// MainC is the container-visible path to the submitted program.
func (d DockedPacket) MainC() string { return filepath.Join(d.Mount, "main.c") }

// InterfaceH is the container-visible path to the bundled harness header.
func (d DockedPacket) InterfaceH() string { return filepath.Join(d.Mount, "interface.h") }

// Input is the container-visible path to the input/ case directory.
func (d DockedPacket) Input() string { return filepath.Join(d.Mount, "input") }

// Crash is the container-visible path to the crash/ case directory.
func (d DockedPacket) Crash() string { return filepath.Join(d.Mount, "crash") }

// Output is the container-visible path to this stage's output directory.
func (d DockedPacket) Output() string { return filepath.Join(d.Mount, "output", d.Stage) }
