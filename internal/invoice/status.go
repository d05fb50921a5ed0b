package invoice

import "strings"

// Status is the canonical invoice lifecycle status.
type Status string

const (
	StatusReceived        Status = "RECEIVED"
	StatusValidated       Status = "VALIDATED"
	StatusMatched         Status = "MATCHED"
	StatusCoded           Status = "CODED"
	StatusReadyForPosting Status = "READY_FOR_POSTING"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPosted          Status = "POSTED"
	StatusException       Status = "EXCEPTION"
)

var allStatuses = []Status{
	StatusReceived,
	StatusValidated,
	StatusMatched,
	StatusCoded,
	StatusReadyForPosting,
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusPosted,
	StatusException,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions maps each status to the set of legal destinations. Terminal
// statuses map to an empty set. EXCEPTION is reachable from any stage via the
// driver's failure mapping and re-enters the lifecycle toward approval or
// rejection.
var transitions = map[Status]map[Status]struct{}{
	StatusReceived:        statusesOf(StatusValidated, StatusException),
	StatusValidated:       statusesOf(StatusMatched, StatusException, StatusPendingApproval, StatusReadyForPosting),
	StatusMatched:         statusesOf(StatusCoded, StatusPendingApproval, StatusApproved, StatusException, StatusReadyForPosting),
	StatusCoded:           statusesOf(StatusReadyForPosting, StatusPendingApproval, StatusException),
	StatusReadyForPosting: statusesOf(StatusApproved, StatusPosted, StatusRejected),
	StatusPendingApproval: statusesOf(StatusApproved, StatusRejected, StatusException),
	StatusApproved:        statusesOf(StatusPosted),
	StatusException:       statusesOf(StatusPendingApproval, StatusRejected),
	StatusRejected:        {},
	StatusPosted:          {},
}

func statusesOf(statuses ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further legal transitions.
func (s Status) IsTerminal() bool {
	dests, ok := transitions[s]
	return ok && len(dests) == 0
}

// CanTransition reports whether moving from current to next is legal.
// A same-status write is always legal, and an unknown or empty current status
// is permissive so freshly ingested documents can enter the lifecycle.
func CanTransition(current, next Status) bool {
	if current == "" || current == next {
		return true
	}
	dests, ok := transitions[current]
	if !ok {
		return true
	}
	_, allowed := dests[next]
	return allowed
}
