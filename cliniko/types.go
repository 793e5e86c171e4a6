package cliniko

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Patient is the subset of a Cliniko patient record the scorer needs.
type Patient struct {
	ID          json.Number `json:"id"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	DateOfBirth string      `json:"date_of_birth"`
}

// Appointment is a Cliniko individual appointment. CancelledAt is null for
// active appointments; DidNotArrive marks a missed appointment.
type Appointment struct {
	ID           json.Number `json:"id"`
	StartsAt     time.Time   `json:"starts_at"`
	CancelledAt  *time.Time  `json:"cancelled_at"`
	DidNotArrive bool        `json:"did_not_arrive"`
	Notes        string      `json:"notes"`
	Patient      *Link       `json:"patient,omitempty"`
}

// Invoice is a Cliniko invoice. ClosedAt is null while the invoice is unpaid;
// TotalAmount arrives as a decimal string.
type Invoice struct {
	ID          json.Number `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	ClosedAt    *time.Time  `json:"closed_at"`
	TotalAmount string      `json:"total_amount"`
	Appointment *Link       `json:"appointment,omitempty"`
}

// ReferralSource links a patient to the patient who referred them.
type ReferralSource struct {
	ID json.Number `json:"id"`
}

// Link is Cliniko's nested reference shape: {"links": {"self": "...url..."}}.
type Link struct {
	Links struct {
		Self string `json:"self"`
	} `json:"links"`
}

// ResourceID extracts the trailing path segment of the linked resource URL.
func (l *Link) ResourceID() string {
	if l == nil || l.Links.Self == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(l.Links.Self, "/"), "/")
	return parts[len(parts)-1]
}

// Amount parses the decimal total, treating a missing or malformed value as 0.
func (i Invoice) Amount() float64 {
	if i.TotalAmount == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(i.TotalAmount, 64)
	if err != nil {
		return 0
	}
	return amount
}
