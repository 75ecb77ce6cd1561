package lesson

// Status is the position of a lesson in its lifecycle:
// Booked -> StartReminded -> EndReminded -> ReportPending -> Reported|Confirmed.
type Status string

const (
	StatusBooked        Status = "booked"
	StatusStartReminded Status = "start_reminded"
	StatusEndReminded   Status = "end_reminded"
	StatusReportPending Status = "report_pending"
	StatusReported      Status = "reported"
	StatusConfirmed     Status = "confirmed"
)

// Rank orders statuses. Transitions only ever move to a higher rank.
func (s Status) Rank() int {
	switch s {
	case StatusBooked:
		return 0
	case StatusStartReminded:
		return 1
	case StatusEndReminded:
		return 2
	case StatusReportPending:
		return 3
	case StatusReported, StatusConfirmed:
		return 4
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Before returns every status a lesson may hold for a transition to s to apply.
func (s Status) Before() []Status {
	all := []Status{StatusBooked, StatusStartReminded, StatusEndReminded, StatusReportPending}
	out := make([]Status, 0, len(all))
	for _, st := range all {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// CanAdvanceTo reports whether a lesson in status s may move to next.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && s.Rank() < next.Rank()
}
