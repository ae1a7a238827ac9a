package domain

// Message statuses progress forward only: sending < sent < delivered < read.
// "failed" sits outside the chain and is accepted from any other status, so a
// late failure report always wins. Everything else is a replay or an
// out-of-order delivery and must be ignored.

var messageStatusRank = map[string]int{
	MessageStatusSending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// MessageStatusRank returns the position of a status in the forward chain,
// or -1 for failed/unknown statuses.
func MessageStatusRank(status string) int {
	if r, ok := messageStatusRank[status]; ok {
		return r
	}
	return -1
}

// ValidMessageStatus reports whether the provider sent a status we track.
func ValidMessageStatus(status string) bool {
	return status == MessageStatusFailed || MessageStatusRank(status) >= 0
}

// CanAdvanceMessage reports whether a message may move from current to next.
func CanAdvanceMessage(current, next string) bool {
	if next == MessageStatusFailed {
		return current != MessageStatusFailed
	}
	cur, nxt := MessageStatusRank(current), MessageStatusRank(next)
	if nxt < 0 {
		return false
	}
	return cur >= 0 && nxt > cur
}

// Call statuses: pending < in_progress < {completed, failed}, both terminal.

var callStatusRank = map[string]int{
	CallStatusPending:    0,
	CallStatusInProgress: 1,
	CallStatusCompleted:  2,
	CallStatusFailed:     2,
}

// CallStatusRank returns the position of a call status, or -1 when unknown.
func CallStatusRank(status string) int {
	if r, ok := callStatusRank[status]; ok {
		return r
	}
	return -1
}

// ValidCallStatus reports whether the provider sent a call status we track.
func ValidCallStatus(status string) bool {
	return CallStatusRank(status) >= 0
}

// CanAdvanceCall reports whether a call may move from current to next.
// completed and failed are both terminal, so neither replaces the other.
func CanAdvanceCall(current, next string) bool {
	cur, nxt := CallStatusRank(current), CallStatusRank(next)
	if cur < 0 || nxt < 0 {
		return false
	}
	return nxt > cur
}
