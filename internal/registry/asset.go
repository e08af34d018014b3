package registry

import _ "embed"

// interfaceHeader is the bundled interface.h asset that overwrites every
// packet's own copy at install time, grounded on agents/dashboard's
// //go:embed static/* pattern for shipping static content inside the
// binary.
//
//go:embed asset/interface.h
var interfaceHeader []byte
