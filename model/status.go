package model

// ApprovalStatus labels a stage in an approval flow. The member set is fixed
// program-wide; definitions cannot extend it.
type ApprovalStatus string

const (
	StatusInProcess ApprovalStatus = "in_process"
	StatusApproved  ApprovalStatus = "approved"
	StatusReject    ApprovalStatus = "reject"
	StatusEnd       ApprovalStatus = "end"
)

// validStatuses is the closed enumeration of approval statuses.
var validStatuses = map[ApprovalStatus]bool{
	StatusInProcess: true,
	StatusApproved:  true,
	StatusReject:    true,
	StatusEnd:       true,
}

// Valid reports whether s is a member of the approval status enumeration.
func (s ApprovalStatus) Valid() bool {
	return validStatuses[s]
}

// Terminal reports whether a request reaching a stage with this status is
// finished. Only in_process stages accept further decisions.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusReject || s == StatusEnd
}

// ApprovalStatuses returns all valid statuses in a stable order.
func ApprovalStatuses() []ApprovalStatus {
	return []ApprovalStatus{StatusInProcess, StatusApproved, StatusReject, StatusEnd}
}
