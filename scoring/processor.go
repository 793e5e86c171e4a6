package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"RatedApp/models"
)

// Appointment is one normalized Cliniko appointment. An appointment is in
// exactly one state at evaluation time, determined in fixed precedence:
// cancelled if CancelledAt is set, else DNA if DidNotArrive, else future if it
// starts after "now", else attended.
type Appointment struct {
	ID           string
	StartsAt     time.Time
	CancelledAt  *time.Time
	DidNotArrive bool
}

// Invoice is one normalized Cliniko invoice. A nil ClosedAt means the invoice
// is still unpaid.
type Invoice struct {
	ID            string
	CreatedAt     time.Time
	ClosedAt      *time.Time
	TotalAmount   float64
	AppointmentID string
}

// PatientData bundles one patient's already-fetched collaborator data. The
// processor never performs I/O; the caller supplies everything.
type PatientData struct {
	DateOfBirth   string
	Appointments  []Appointment
	Invoices      []Invoice
	ReferralCount int
	Likability    int
}

const (
	statusCancelled = iota
	statusDNA
	statusFuture
	statusAttended
)

// dobLayouts are tried in order when parsing a date of birth. Cliniko returns
// plain dates, but older records carry full timestamps or UK-style dates.
var dobLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
}

// Process computes the behavior report for one patient against one scoring
// configuration. The evaluation instant and clinic timezone are explicit so
// results are deterministic for a fixed now.
func Process(data PatientData, cfg *models.ScoringConfiguration, now time.Time, loc *time.Location) *BehaviorReport {
	report := &BehaviorReport{
		FutureAppointments:    scoreFutureAppointments(data.Appointments, cfg, now),
		AgeDemographics:       scoreAgeDemographics(data.DateOfBirth, cfg, now, loc),
		YearlySpend:           scoreYearlySpend(data.Invoices, cfg, now),
		ConsecutiveAttendance: scoreConsecutiveAttendance(data.Appointments, cfg, now),
		ReferrerScore:         scoreReferrals(data.ReferralCount, cfg),
		OpenDNAInvoices:       scoreOpenDNAInvoices(data.Invoices, data.Appointments, cfg),
		UnpaidInvoices:        scoreUnpaidInvoices(data.Invoices, cfg),
		Cancellations:         scoreCancellations(data.Appointments, cfg, now),
		DNA:                   scoreDNA(data.Appointments, cfg, now),
		Likability:            scoreLikability(data.Likability),
	}

	total := 0
	for _, category := range report.Categories() {
		total += category.Points
	}
	report.TotalScore = total
	report.LetterGrade = LetterGrade(total)
	return report
}

// classify assigns an appointment to exactly one state so that no appointment
// is double counted across categories.
func classify(a Appointment, now time.Time) int {
	if a.CancelledAt != nil {
		return statusCancelled
	}
	if a.DidNotArrive {
		return statusDNA
	}
	if a.StartsAt.After(now) {
		return statusFuture
	}
	return statusAttended
}

// scoreFutureAppointments is a binary trigger: any upcoming appointment earns
// the full weight.
func scoreFutureAppointments(appointments []Appointment, cfg *models.ScoringConfiguration, now time.Time) CategoryScore {
	count := 0
	for _, a := range appointments {
		if classify(a, now) == statusFuture {
			count++
		}
	}
	points := 0
	if count > 0 {
		points = cfg.FutureAppointmentsWeight
	}
	return CategoryScore{
		Points:      points,
		Count:       count,
		Description: fmt.Sprintf("%d upcoming appointment(s) booked", count),
	}
}

// scoreAgeDemographics awards a bracket percentage of the age weight. Age is
// whole days since birth divided by 365 in the clinic's local timezone; the
// division is intentionally not calendar-accurate and drifts near leap years.
// Keep the formula as-is: the dashboard brackets were tuned against it.
func scoreAgeDemographics(dateOfBirth string, cfg *models.ScoringConfiguration, now time.Time, loc *time.Location) CategoryScore {
	age := ageInYears(dateOfBirth, now, loc)
	for _, bracket := range cfg.AgeBrackets {
		if age >= bracket.MinAge && age <= bracket.MaxAge {
			points := roundPercentage(cfg.AgeDemographicsWeight, bracket.Percentage)
			return CategoryScore{
				Points:      points,
				Count:       age,
				Description: fmt.Sprintf("Age %d matched bracket %d-%d", age, bracket.MinAge, bracket.MaxAge),
			}
		}
	}
	return CategoryScore{
		Count:       age,
		Description: fmt.Sprintf("Age %d matched no bracket", age),
	}
}

// scoreYearlySpend sums invoice totals over the trailing 365 days and awards a
// bracket percentage of the spend weight. Spend above the top bracket falls
// back to the top bracket's percentage.
func scoreYearlySpend(invoices []Invoice, cfg *models.ScoringConfiguration, now time.Time) CategoryScore {
	windowStart := now.AddDate(0, 0, -365)
	spend := 0.0
	for _, inv := range invoices {
		if inv.CreatedAt.After(windowStart) && !inv.CreatedAt.After(now) {
			spend += inv.TotalAmount
		}
	}

	for _, bracket := range cfg.SpendBrackets {
		if spend >= bracket.MinSpend && spend <= bracket.MaxSpend {
			points := roundPercentage(cfg.YearlySpendWeight, bracket.Percentage)
			return CategoryScore{
				Points:      points,
				Amount:      spend,
				Description: fmt.Sprintf("Spent %.2f in the last year (bracket %.0f-%.0f)", spend, bracket.MinSpend, bracket.MaxSpend),
			}
		}
	}

	// Out-of-range positive spend takes the highest bracket's percentage.
	if spend > 0 {
		if top, ok := highestSpendBracket(cfg.SpendBrackets); ok && spend > top.MaxSpend {
			points := roundPercentage(cfg.YearlySpendWeight, top.Percentage)
			return CategoryScore{
				Points:      points,
				Amount:      spend,
				Description: fmt.Sprintf("Spent %.2f in the last year (above top bracket)", spend),
			}
		}
	}
	return CategoryScore{
		Amount:      spend,
		Description: fmt.Sprintf("Spent %.2f in the last year (no bracket matched)", spend),
	}
}

// scoreConsecutiveAttendance walks past appointments from most recent
// backwards, counting attended ones until the first cancellation or DNA.
func scoreConsecutiveAttendance(appointments []Appointment, cfg *models.ScoringConfiguration, now time.Time) CategoryScore {
	past := make([]Appointment, 0, len(appointments))
	for _, a := range appointments {
		if !a.StartsAt.After(now) {
			past = append(past, a)
		}
	}
	sort.Slice(past, func(i, j int) bool {
		return past[i].StartsAt.After(past[j].StartsAt)
	})

	streak := 0
	for _, a := range past {
		status := classify(a, now)
		if status == statusCancelled || status == statusDNA {
			break
		}
		streak++
	}

	points := capPoints(streak*cfg.PointsPerConsecutiveAttendance, cfg.ConsecutiveAttendanceWeight)
	return CategoryScore{
		Points:      points,
		Count:       streak,
		Description: fmt.Sprintf("%d consecutive appointment(s) attended", streak),
	}
}

func scoreReferrals(referralCount int, cfg *models.ScoringConfiguration) CategoryScore {
	points := capPoints(referralCount*cfg.PointsPerReferral, cfg.ReferrerScoreWeight)
	return CategoryScore{
		Points:      points,
		Count:       referralCount,
		Description: fmt.Sprintf("%d patient(s) referred", referralCount),
	}
}

// scoreOpenDNAInvoices is a binary penalty: one or more unpaid invoices linked
// to a did-not-arrive appointment costs the full weight. The raw DNA flag is
// checked here, not the classification, so a later-cancelled appointment still
// flags its unpaid invoice.
func scoreOpenDNAInvoices(invoices []Invoice, appointments []Appointment, cfg *models.ScoringConfiguration) CategoryScore {
	dnaAppointments := make(map[string]bool, len(appointments))
	for _, a := range appointments {
		if a.DidNotArrive {
			dnaAppointments[a.ID] = true
		}
	}

	count := 0
	for _, inv := range invoices {
		if inv.ClosedAt == nil && inv.AppointmentID != "" && dnaAppointments[inv.AppointmentID] {
			count++
		}
	}
	points := 0
	if count > 0 {
		points = -cfg.OpenDNAInvoiceWeight
	}
	return CategoryScore{
		Points:      points,
		Count:       count,
		Description: fmt.Sprintf("%d unpaid invoice(s) from missed appointments", count),
	}
}

func scoreUnpaidInvoices(invoices []Invoice, cfg *models.ScoringConfiguration) CategoryScore {
	count := 0
	for _, inv := range invoices {
		if inv.ClosedAt == nil {
			count++
		}
	}
	points := -capPoints(count*cfg.PointsPerUnpaidInvoice, cfg.UnpaidInvoicesWeight)
	return CategoryScore{
		Points:      points,
		Count:       count,
		Description: fmt.Sprintf("%d unpaid invoice(s)", count),
	}
}

func scoreCancellations(appointments []Appointment, cfg *models.ScoringConfiguration, now time.Time) CategoryScore {
	count := 0
	for _, a := range appointments {
		if classify(a, now) == statusCancelled {
			count++
		}
	}
	points := -capPoints(count*cfg.PointsPerCancellation, cfg.CancellationsWeight)
	return CategoryScore{
		Points:      points,
		Count:       count,
		Description: fmt.Sprintf("%d appointment(s) cancelled", count),
	}
}

func scoreDNA(appointments []Appointment, cfg *models.ScoringConfiguration, now time.Time) CategoryScore {
	count := 0
	for _, a := range appointments {
		if classify(a, now) == statusDNA {
			count++
		}
	}
	points := -capPoints(count*cfg.PointsPerDNA, cfg.DNAWeight)
	return CategoryScore{
		Points:      points,
		Count:       count,
		Description: fmt.Sprintf("%d appointment(s) missed without cancelling", count),
	}
}

// scoreLikability contributes the manually-entered value directly; it is its
// own point value, no weight or cap applied.
func scoreLikability(likability int) CategoryScore {
	return CategoryScore{
		Points:      likability,
		Count:       likability,
		Description: fmt.Sprintf("Manual likability of %d", likability),
	}
}

// ageInYears returns whole days since birth divided by 365, evaluated in the
// clinic's timezone. An unparseable or future date of birth yields 0.
func ageInYears(dateOfBirth string, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	dob, ok := parseDateOfBirth(dateOfBirth, loc)
	if !ok {
		return 0
	}
	days := int(now.In(loc).Sub(dob).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 365
}

func parseDateOfBirth(dateOfBirth string, loc *time.Location) (time.Time, bool) {
	if dateOfBirth == "" {
		return time.Time{}, false
	}
	for _, layout := range dobLayouts {
		if t, err := time.ParseInLocation(layout, dateOfBirth, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func highestSpendBracket(brackets []models.SpendBracket) (models.SpendBracket, bool) {
	if len(brackets) == 0 {
		return models.SpendBracket{}, false
	}
	top := brackets[0]
	for _, b := range brackets[1:] {
		if b.MaxSpend > top.MaxSpend {
			top = b
		}
	}
	return top, true
}

func roundPercentage(weight, percentage int) int {
	return int(math.Round(float64(weight) * float64(percentage) / 100))
}

func capPoints(raw, limit int) int {
	if raw > limit {
		return limit
	}
	if raw < 0 {
		return 0
	}
	return raw
}
