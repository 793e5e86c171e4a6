package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RatedApp/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testConfig() *models.ScoringConfiguration {
	return &models.ScoringConfiguration{
		Name:                           "test",
		FutureAppointmentsWeight:       20,
		AgeDemographicsWeight:          10,
		YearlySpendWeight:              20,
		ConsecutiveAttendanceWeight:    20,
		ReferrerScoreWeight:            20,
		OpenDNAInvoiceWeight:           10,
		UnpaidInvoicesWeight:           10,
		CancellationsWeight:            10,
		DNAWeight:                      12,
		PointsPerConsecutiveAttendance: 2,
		PointsPerReferral:              5,
		PointsPerUnpaidInvoice:         5,
		PointsPerCancellation:          3,
		PointsPerDNA:                   5,
		AgeBrackets: []models.AgeBracket{
			{MinAge: 0, MaxAge: 17, Percentage: 25},
			{MinAge: 18, MaxAge: 34, Percentage: 50},
			{MinAge: 35, MaxAge: 59, Percentage: 100},
			{MinAge: 60, MaxAge: 120, Percentage: 75},
		},
		SpendBrackets: []models.SpendBracket{
			{MinSpend: 0, MaxSpend: 249.99, Percentage: 0},
			{MinSpend: 250, MaxSpend: 749.99, Percentage: 50},
			{MinSpend: 750, MaxSpend: 1999.99, Percentage: 75},
			{MinSpend: 2000, MaxSpend: 10000, Percentage: 100},
		},
	}
}

func attended(id string, daysAgo int) Appointment {
	return Appointment{ID: id, StartsAt: testNow.AddDate(0, 0, -daysAgo)}
}

func cancelled(id string, daysAgo int) Appointment {
	at := testNow.AddDate(0, 0, -daysAgo)
	return Appointment{ID: id, StartsAt: at, CancelledAt: &at}
}

func dna(id string, daysAgo int) Appointment {
	return Appointment{ID: id, StartsAt: testNow.AddDate(0, 0, -daysAgo), DidNotArrive: true}
}

func future(id string, daysAhead int) Appointment {
	return Appointment{ID: id, StartsAt: testNow.AddDate(0, 0, daysAhead)}
}

func TestProcessEmptyPatient(t *testing.T) {
	report := Process(PatientData{}, testConfig(), testNow, time.UTC)

	assert.Equal(t, 0, report.TotalScore)
	assert.Equal(t, "F", report.LetterGrade)
	for _, category := range report.Categories() {
		assert.Equal(t, 0, category.Points)
	}
}

func TestLetterGradeThresholds(t *testing.T) {
	cases := map[int]string{
		150: "A+",
		100: "A+",
		99:  "A",
		80:  "A",
		79:  "B",
		60:  "B",
		59:  "C",
		40:  "C",
		39:  "D",
		20:  "D",
		19:  "F",
		0:   "F",
		-5:  "F",
	}
	for score, grade := range cases {
		assert.Equal(t, grade, LetterGrade(score), "score %d", score)
	}
}

func TestTotalScoreIsSumOfCategories(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		DateOfBirth: "1990-06-01",
		Appointments: []Appointment{
			future("f1", 7),
			attended("a1", 10),
			attended("a2", 40),
			cancelled("c1", 70),
			dna("d1", 100),
		},
		Invoices: []Invoice{
			{ID: "i1", CreatedAt: testNow.AddDate(0, 0, -30), TotalAmount: 300},
			{ID: "i2", CreatedAt: testNow.AddDate(0, 0, -60), TotalAmount: 100, AppointmentID: "d1"},
		},
		ReferralCount: 2,
		Likability:    7,
	}
	report := Process(data, cfg, testNow, time.UTC)

	sum := 0
	for _, category := range report.Categories() {
		sum += category.Points
	}
	assert.Equal(t, sum, report.TotalScore)
}

func TestFutureAppointmentsBinaryTrigger(t *testing.T) {
	cfg := testConfig()

	one := Process(PatientData{Appointments: []Appointment{future("f1", 1)}}, cfg, testNow, time.UTC)
	three := Process(PatientData{Appointments: []Appointment{future("f1", 1), future("f2", 2), future("f3", 3)}}, cfg, testNow, time.UTC)

	assert.Equal(t, 20, one.FutureAppointments.Points)
	assert.Equal(t, 20, three.FutureAppointments.Points)
	assert.Equal(t, 3, three.FutureAppointments.Count)
}

func TestCancelledFutureAppointmentDoesNotTrigger(t *testing.T) {
	at := testNow.AddDate(0, 0, 5)
	cancelledFuture := Appointment{ID: "cf", StartsAt: at, CancelledAt: &at}

	report := Process(PatientData{Appointments: []Appointment{cancelledFuture}}, testConfig(), testNow, time.UTC)

	assert.Equal(t, 0, report.FutureAppointments.Points)
	assert.Equal(t, 1, report.Cancellations.Count)
}

func TestAgeBracketMatch(t *testing.T) {
	cfg := testConfig()

	// Born 1990-06-01, evaluated 2026-03-15: 35 years old, 100% bracket.
	report := Process(PatientData{DateOfBirth: "1990-06-01"}, cfg, testNow, time.UTC)
	assert.Equal(t, 10, report.AgeDemographics.Points)

	// 20 years old, 50% bracket.
	report = Process(PatientData{DateOfBirth: "2006-01-01"}, cfg, testNow, time.UTC)
	assert.Equal(t, 5, report.AgeDemographics.Points)
}

func TestAgeUnparseableDateOfBirth(t *testing.T) {
	cfg := testConfig()
	report := Process(PatientData{DateOfBirth: "not-a-date"}, cfg, testNow, time.UTC)

	// Age 0 still matches the 0-17 bracket: 25% of 10 rounds to 3.
	assert.Equal(t, 0, report.AgeDemographics.Count)
	assert.Equal(t, 3, report.AgeDemographics.Points)
}

func TestAgeNoBracketsConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AgeBrackets = nil
	report := Process(PatientData{DateOfBirth: "1990-06-01"}, cfg, testNow, time.UTC)
	assert.Equal(t, 0, report.AgeDemographics.Points)
}

func TestYearlySpendWindow(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		Invoices: []Invoice{
			{ID: "in", CreatedAt: testNow.AddDate(0, 0, -100), TotalAmount: 500},
			{ID: "out", CreatedAt: testNow.AddDate(0, 0, -400), TotalAmount: 5000},
		},
	}
	report := Process(data, cfg, testNow, time.UTC)

	// Only the invoice inside the trailing 365 days counts: 500 -> 50% of 20.
	assert.InDelta(t, 500, report.YearlySpend.Amount, 0.001)
	assert.Equal(t, 10, report.YearlySpend.Points)
}

func TestYearlySpendFallbackToHighestBracket(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		Invoices: []Invoice{
			{ID: "big", CreatedAt: testNow.AddDate(0, 0, -10), TotalAmount: 25000},
		},
	}
	report := Process(data, cfg, testNow, time.UTC)

	// 25000 exceeds the top bracket's max; the top percentage applies.
	assert.Equal(t, 20, report.YearlySpend.Points)
}

func TestYearlySpendNoBracketsConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.SpendBrackets = nil
	data := PatientData{
		Invoices: []Invoice{{ID: "i", CreatedAt: testNow.AddDate(0, 0, -10), TotalAmount: 900}},
	}
	report := Process(data, cfg, testNow, time.UTC)
	assert.Equal(t, 0, report.YearlySpend.Points)
}

func TestConsecutiveAttendanceStreak(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		Appointments: []Appointment{
			attended("a1", 5),
			attended("a2", 15),
			attended("a3", 25),
			dna("d1", 35),
			attended("a4", 45),
		},
	}
	report := Process(data, cfg, testNow, time.UTC)

	// Three attended before the DNA stops the walk.
	assert.Equal(t, 3, report.ConsecutiveAttendance.Count)
	assert.Equal(t, 6, report.ConsecutiveAttendance.Points)
}

func TestConsecutiveAttendanceIgnoresFutureAppointments(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		Appointments: []Appointment{
			future("f1", 3),
			attended("a1", 5),
			cancelled("c1", 15),
		},
	}
	report := Process(data, cfg, testNow, time.UTC)

	assert.Equal(t, 1, report.ConsecutiveAttendance.Count)
	assert.Equal(t, 1, report.FutureAppointments.Count)
}

func TestConsecutiveAttendanceCap(t *testing.T) {
	cfg := testConfig()
	appointments := make([]Appointment, 0, 15)
	for i := 0; i < 15; i++ {
		appointments = append(appointments, attended("a", 5+i*10))
	}
	report := Process(PatientData{Appointments: appointments}, cfg, testNow, time.UTC)

	// 15 * 2 = 30 raw, capped at the 20 weight.
	assert.Equal(t, 15, report.ConsecutiveAttendance.Count)
	assert.Equal(t, 20, report.ConsecutiveAttendance.Points)
}

func TestReferrerScoreCap(t *testing.T) {
	cfg := testConfig()

	report := Process(PatientData{ReferralCount: 2}, cfg, testNow, time.UTC)
	assert.Equal(t, 10, report.ReferrerScore.Points)

	report = Process(PatientData{ReferralCount: 10}, cfg, testNow, time.UTC)
	assert.Equal(t, 20, report.ReferrerScore.Points)
}

func TestOpenDNAInvoiceBinaryPenalty(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		Appointments: []Appointment{dna("d1", 10), dna("d2", 30)},
		Invoices: []Invoice{
			{ID: "i1", CreatedAt: testNow.AddDate(0, 0, -10), TotalAmount: 50, AppointmentID: "d1"},
			{ID: "i2", CreatedAt: testNow.AddDate(0, 0, -30), TotalAmount: 50, AppointmentID: "d2"},
		},
	}
	report := Process(data, cfg, testNow, time.UTC)

	// Two open DNA invoices still cost the weight once.
	assert.Equal(t, 2, report.OpenDNAInvoices.Count)
	assert.Equal(t, -10, report.OpenDNAInvoices.Points)
}

func TestOpenDNAInvoiceRequiresUnpaid(t *testing.T) {
	cfg := testConfig()
	closed := testNow.AddDate(0, 0, -5)
	data := PatientData{
		Appointments: []Appointment{dna("d1", 10)},
		Invoices: []Invoice{
			{ID: "i1", CreatedAt: testNow.AddDate(0, 0, -10), ClosedAt: &closed, TotalAmount: 50, AppointmentID: "d1"},
		},
	}
	report := Process(data, cfg, testNow, time.UTC)
	assert.Equal(t, 0, report.OpenDNAInvoices.Points)
}

func TestUnpaidInvoicesCappedPenalty(t *testing.T) {
	cfg := testConfig()
	invoices := make([]Invoice, 0, 4)
	for i := 0; i < 4; i++ {
		invoices = append(invoices, Invoice{ID: "i", CreatedAt: testNow.AddDate(0, 0, -i)})
	}
	report := Process(PatientData{Invoices: invoices}, cfg, testNow, time.UTC)

	// 4 * 5 = 20 raw penalty, capped at the 10 weight.
	assert.Equal(t, -10, report.UnpaidInvoices.Points)
}

func TestCancellationsCappedPenalty(t *testing.T) {
	cfg := testConfig()
	appointments := make([]Appointment, 0, 5)
	for i := 0; i < 5; i++ {
		appointments = append(appointments, cancelled("c", 10+i))
	}
	report := Process(PatientData{Appointments: appointments}, cfg, testNow, time.UTC)

	// min(5*3, 10) = 10.
	assert.Equal(t, -10, report.Cancellations.Points)
}

func TestDNACappedPenalty(t *testing.T) {
	cfg := testConfig()
	appointments := make([]Appointment, 0, 10)
	for i := 0; i < 10; i++ {
		appointments = append(appointments, dna("d", 10+i))
	}
	report := Process(PatientData{Appointments: appointments}, cfg, testNow, time.UTC)

	// 10 DNAs at 5 points each yield -12, not -50.
	assert.Equal(t, -12, report.DNA.Points)
}

func TestCancelledDNATakesCancelledPrecedence(t *testing.T) {
	cfg := testConfig()
	at := testNow.AddDate(0, 0, -10)
	both := Appointment{ID: "x", StartsAt: at, CancelledAt: &at, DidNotArrive: true}

	report := Process(PatientData{Appointments: []Appointment{both}}, cfg, testNow, time.UTC)

	assert.Equal(t, 1, report.Cancellations.Count)
	assert.Equal(t, 0, report.DNA.Count)
}

func TestLikabilityRawContribution(t *testing.T) {
	cfg := testConfig()

	report := Process(PatientData{Likability: 42}, cfg, testNow, time.UTC)
	assert.Equal(t, 42, report.Likability.Points)

	report = Process(PatientData{Likability: -30}, cfg, testNow, time.UTC)
	assert.Equal(t, -30, report.Likability.Points)
	assert.Equal(t, -30, report.TotalScore)
	assert.Equal(t, "F", report.LetterGrade)
}

func TestFutureAndAgeScenario(t *testing.T) {
	cfg := testConfig()
	cfg.AgeBrackets = []models.AgeBracket{{MinAge: 30, MaxAge: 40, Percentage: 100}}
	data := PatientData{
		DateOfBirth:  "1990-06-01",
		Appointments: []Appointment{future("f1", 1), future("f2", 5), future("f3", 9)},
	}
	report := Process(data, cfg, testNow, time.UTC)

	// 20 (future) + 10 (age at 100%) = 30 -> D.
	assert.Equal(t, 30, report.TotalScore)
	assert.Equal(t, "D", report.LetterGrade)
}

func TestProcessIsIdempotent(t *testing.T) {
	cfg := testConfig()
	data := PatientData{
		DateOfBirth: "1985-02-10",
		Appointments: []Appointment{
			future("f1", 2), attended("a1", 10), cancelled("c1", 20), dna("d1", 30),
		},
		Invoices: []Invoice{
			{ID: "i1", CreatedAt: testNow.AddDate(0, 0, -15), TotalAmount: 800},
			{ID: "i2", CreatedAt: testNow.AddDate(0, 0, -45), TotalAmount: 120, AppointmentID: "d1"},
		},
		ReferralCount: 1,
		Likability:    5,
	}

	first := Process(data, cfg, testNow, time.UTC)
	second := Process(data, cfg, testNow, time.UTC)
	assert.Equal(t, first, second)
}

func TestCategoryDeltaIsolated(t *testing.T) {
	cfg := testConfig()
	base := PatientData{
		DateOfBirth:  "1985-02-10",
		Appointments: []Appointment{attended("a1", 10)},
		Likability:   5,
	}
	baseline := Process(base, cfg, testNow, time.UTC)

	bumped := base
	bumped.Likability = 15
	report := Process(bumped, cfg, testNow, time.UTC)

	assert.Equal(t, baseline.TotalScore+10, report.TotalScore)
	assert.Equal(t, baseline.AgeDemographics, report.AgeDemographics)
	assert.Equal(t, baseline.ConsecutiveAttendance, report.ConsecutiveAttendance)
}

func TestClinicTimezoneAffectsAge(t *testing.T) {
	cfg := testConfig()
	cfg.AgeBrackets = []models.AgeBracket{{MinAge: 18, MaxAge: 18, Percentage: 100}}

	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	// 6570 days (18 * 365) before the evaluation instant in Sydney.
	dob := testNow.In(sydney).AddDate(0, 0, -6570).Format("2006-01-02")
	report := Process(PatientData{DateOfBirth: dob}, cfg, testNow, sydney)
	assert.Equal(t, 18, report.AgeDemographics.Count)
}
