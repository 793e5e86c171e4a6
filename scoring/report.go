package scoring

// CategoryScore is the outcome of one behavior category: the points it
// contributes to the total, the event count (or amount for spend) behind it,
// and a human-readable description shown in the dashboard.
type CategoryScore struct {
	Points      int     `json:"points"`
	Count       int     `json:"count"`
	Amount      float64 `json:"amount,omitempty"`
	Description string  `json:"description"`
}

// BehaviorReport is the fixed-shape result of scoring one patient: ten named
// categories, their sum, and the letter grade derived from it.
type BehaviorReport struct {
	FutureAppointments    CategoryScore `json:"future_appointments"`
	AgeDemographics       CategoryScore `json:"age_demographics"`
	YearlySpend           CategoryScore `json:"yearly_spend"`
	ConsecutiveAttendance CategoryScore `json:"consecutive_attendance"`
	ReferrerScore         CategoryScore `json:"referrer_score"`
	OpenDNAInvoices       CategoryScore `json:"open_dna_invoices"`
	UnpaidInvoices        CategoryScore `json:"unpaid_invoices"`
	Cancellations         CategoryScore `json:"cancellations"`
	DNA                   CategoryScore `json:"dna"`
	Likability            CategoryScore `json:"likability"`

	TotalScore  int    `json:"total_score"`
	LetterGrade string `json:"letter_grade"`
}

// Categories returns the ten category scores in report order.
func (r *BehaviorReport) Categories() []CategoryScore {
	return []CategoryScore{
		r.FutureAppointments,
		r.AgeDemographics,
		r.YearlySpend,
		r.ConsecutiveAttendance,
		r.ReferrerScore,
		r.OpenDNAInvoices,
		r.UnpaidInvoices,
		r.Cancellations,
		r.DNA,
		r.Likability,
	}
}

// Letter grade thresholds are fixed: a report at or above a threshold earns
// the corresponding grade, anything below 20 is an F.
func LetterGrade(totalScore int) string {
	switch {
	case totalScore >= 100:
		return "A+"
	case totalScore >= 80:
		return "A"
	case totalScore >= 60:
		return "B"
	case totalScore >= 40:
		return "C"
	case totalScore >= 20:
		return "D"
	default:
		return "F"
	}
}
