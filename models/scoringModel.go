package models

import (
	"time"

	"gorm.io/gorm"
)

// ScoringConfiguration is a named set of category weights, points-per-event
// multipliers and bracket tables. At most one configuration is active for live
// behavior scoring and at most one for analytics runs at any time.
type ScoringConfiguration struct {
	ID   uint   `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name string `gorm:"column:name;unique;not null;index" json:"name"`

	FutureAppointmentsWeight    int `gorm:"column:future_appointments_weight;not null" json:"future_appointments_weight"`
	AgeDemographicsWeight       int `gorm:"column:age_demographics_weight;not null" json:"age_demographics_weight"`
	YearlySpendWeight           int `gorm:"column:yearly_spend_weight;not null" json:"yearly_spend_weight"`
	ConsecutiveAttendanceWeight int `gorm:"column:consecutive_attendance_weight;not null" json:"consecutive_attendance_weight"`
	ReferrerScoreWeight         int `gorm:"column:referrer_score_weight;not null" json:"referrer_score_weight"`
	OpenDNAInvoiceWeight        int `gorm:"column:open_dna_invoice_weight;not null" json:"open_dna_invoice_weight"`
	UnpaidInvoicesWeight        int `gorm:"column:unpaid_invoices_weight;not null" json:"unpaid_invoices_weight"`
	CancellationsWeight         int `gorm:"column:cancellations_weight;not null" json:"cancellations_weight"`
	DNAWeight                   int `gorm:"column:dna_weight;not null" json:"dna_weight"`

	PointsPerConsecutiveAttendance int `gorm:"column:points_per_consecutive_attendance;not null" json:"points_per_consecutive_attendance"`
	PointsPerReferral              int `gorm:"column:points_per_referral;not null" json:"points_per_referral"`
	PointsPerUnpaidInvoice         int `gorm:"column:points_per_unpaid_invoice;not null" json:"points_per_unpaid_invoice"`
	PointsPerCancellation          int `gorm:"column:points_per_cancellation;not null" json:"points_per_cancellation"`
	PointsPerDNA                   int `gorm:"column:points_per_dna;not null" json:"points_per_dna"`

	ActiveForScoring   bool `gorm:"column:active_for_scoring;not null;index" json:"active_for_scoring"`
	ActiveForAnalytics bool `gorm:"column:active_for_analytics;not null;index" json:"active_for_analytics"`

	AgeBrackets   []AgeBracket   `gorm:"foreignKey:ConfigurationID;references:ID" json:"age_brackets"`
	SpendBrackets []SpendBracket `gorm:"foreignKey:ConfigurationID;references:ID" json:"spend_brackets"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ScoringConfiguration) TableName() string {
	return "scoring_configuration"
}

// AgeBracket awards a percentage of the age-demographics weight when a
// patient's age falls in [min_age, max_age]. Brackets are matched in ascending
// min_age order, first match wins.
type AgeBracket struct {
	ID              uint `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ConfigurationID uint `gorm:"column:configuration_id;not null;index" json:"configuration_id"`
	MinAge          int  `gorm:"column:min_age;not null" json:"min_age"`
	MaxAge          int  `gorm:"column:max_age;not null" json:"max_age"`
	Percentage      int  `gorm:"column:percentage;not null" json:"percentage"`
}

func (AgeBracket) TableName() string {
	return "age_bracket"
}

// SpendBracket awards a percentage of the yearly-spend weight when a patient's
// trailing-year spend falls in [min_spend, max_spend]. Spend above the top
// bracket falls back to the top bracket's percentage.
type SpendBracket struct {
	ID              uint    `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ConfigurationID uint    `gorm:"column:configuration_id;not null;index" json:"configuration_id"`
	MinSpend        float64 `gorm:"column:min_spend;not null" json:"min_spend"`
	MaxSpend        float64 `gorm:"column:max_spend;not null" json:"max_spend"`
	Percentage      int     `gorm:"column:percentage;not null" json:"percentage"`
}

func (SpendBracket) TableName() string {
	return "spend_bracket"
}

// SeedScoringConfiguration inserts the default configuration used until an
// administrator tunes the weights. It is also the configuration restored by
// the "Default" preset in the dashboard.
func SeedScoringConfiguration(db *gorm.DB) error {
	defaultConfig := ScoringConfiguration{
		Name:                           "Default",
		FutureAppointmentsWeight:       20,
		AgeDemographicsWeight:          10,
		YearlySpendWeight:              20,
		ConsecutiveAttendanceWeight:    20,
		ReferrerScoreWeight:            20,
		OpenDNAInvoiceWeight:           10,
		UnpaidInvoicesWeight:           10,
		CancellationsWeight:            10,
		DNAWeight:                      10,
		PointsPerConsecutiveAttendance: 2,
		PointsPerReferral:              5,
		PointsPerUnpaidInvoice:         5,
		PointsPerCancellation:          2,
		PointsPerDNA:                   5,
		ActiveForScoring:               true,
		ActiveForAnalytics:             true,
		AgeBrackets: []AgeBracket{
			{MinAge: 0, MaxAge: 17, Percentage: 25},
			{MinAge: 18, MaxAge: 34, Percentage: 50},
			{MinAge: 35, MaxAge: 59, Percentage: 100},
			{MinAge: 60, MaxAge: 120, Percentage: 75},
		},
		SpendBrackets: []SpendBracket{
			{MinSpend: 0, MaxSpend: 249.99, Percentage: 0},
			{MinSpend: 250, MaxSpend: 749.99, Percentage: 50},
			{MinSpend: 750, MaxSpend: 1999.99, Percentage: 75},
			{MinSpend: 2000, MaxSpend: 10000, Percentage: 100},
		},
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ScoringConfiguration{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&defaultConfig).Error
	})
}
