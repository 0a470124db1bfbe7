package domain

import "time"

// PortAllocation is one row of the global port reservation table.
// A row with a non-empty ProjectID is exclusively held; releasing a
// project clears ProjectID but keeps the row for reuse.
type PortAllocation struct {
	Framework  string
	Port       int
	ProjectID  string
	ReservedAt time.Time
}

// Free reports whether the port has no current owner
func (a PortAllocation) Free() bool {
	return a.ProjectID == ""
}
