package cliniko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultPerPage    = 100
	defaultRetryDelay = 30 * time.Second
)

// ratingPattern matches a previously written rating so it can be replaced
// instead of accumulating in the notes field.
var ratingPattern = regexp.MustCompile(`Rated [A-F]\+?`)

// API is the slice of the Cliniko REST API the scoring and analytics services
// depend on. Tests stub this with in-memory fixtures.
type API interface {
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	GetAppointments(ctx context.Context, patientID string) ([]Appointment, error)
	GetInvoices(ctx context.Context, patientID string) ([]Invoice, error)
	GetReferralCount(ctx context.Context, patientID string) (int, error)
	ListPatientIDs(ctx context.Context, from, to time.Time) ([]string, error)
	WriteRating(ctx context.Context, appointmentID, grade string) error
}

// Config configures the Cliniko REST client.
type Config struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	RequestsPerSecond float64
}

// Client talks to Cliniko's REST API: basic auth with the API key as username,
// page-based pagination at 100 items per page, and q[] filter parameters.
// Outbound calls go through a shared rate limiter; a 429 gets one fixed-delay
// retry, anything else non-200 is an error for the caller to record.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	perPage    int
	retryDelay time.Duration
}

// NewClient creates a Cliniko client from the given configuration.
func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		perPage:    defaultPerPage,
		retryDelay: defaultRetryDelay,
	}
}

// GetPatient fetches a single patient record.
func (c *Client) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	var patient Patient
	if err := c.get(ctx, "patients/"+patientID, nil, &patient); err != nil {
		return nil, fmt.Errorf("failed to get patient %s: %w", patientID, err)
	}
	return &patient, nil
}

// GetAppointments fetches all appointments for a patient. Cliniko excludes
// cancelled appointments from default listings, so a second filtered fetch
// brings them in; the merged result is deduplicated by ID.
func (c *Client) GetAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	active, err := c.listAppointments(ctx, url.Values{
		"q[]": []string{"patient_id:=" + patientID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments for patient %s: %w", patientID, err)
	}

	cancelledAppointments, err := c.listAppointments(ctx, url.Values{
		"q[]": []string{"patient_id:=" + patientID, "cancelled_at:*"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cancelled appointments for patient %s: %w", patientID, err)
	}

	seen := make(map[string]bool, len(active)+len(cancelledAppointments))
	merged := make([]Appointment, 0, len(active)+len(cancelledAppointments))
	for _, a := range append(active, cancelledAppointments...) {
		id := a.ID.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, a)
	}
	return merged, nil
}

// GetInvoices fetches all invoices for a patient.
func (c *Client) GetInvoices(ctx context.Context, patientID string) ([]Invoice, error) {
	var invoices []Invoice
	query := url.Values{"q[]": []string{"patient_id:=" + patientID}}
	for page := 1; ; page++ {
		var envelope struct {
			Invoices []Invoice `json:"invoices"`
		}
		if err := c.get(ctx, "invoices", c.paged(query, page), &envelope); err != nil {
			return nil, fmt.Errorf("failed to get invoices for patient %s: %w", patientID, err)
		}
		invoices = append(invoices, envelope.Invoices...)
		if len(envelope.Invoices) < c.perPage {
			return invoices, nil
		}
	}
}

// GetReferralCount counts the patients this patient has referred.
func (c *Client) GetReferralCount(ctx context.Context, patientID string) (int, error) {
	count := 0
	query := url.Values{"q[]": []string{"referring_patient_id:=" + patientID}}
	for page := 1; ; page++ {
		var envelope struct {
			ReferralSources []ReferralSource `json:"referral_sources"`
		}
		if err := c.get(ctx, "referral_sources", c.paged(query, page), &envelope); err != nil {
			return 0, fmt.Errorf("failed to get referrals for patient %s: %w", patientID, err)
		}
		count += len(envelope.ReferralSources)
		if len(envelope.ReferralSources) < c.perPage {
			return count, nil
		}
	}
}

// ListPatientIDs returns the distinct IDs of patients with an appointment
// starting in [from, to], in ascending order. As in GetAppointments, cancelled
// appointments need their own fetch, so a patient whose only booking in the
// range was cancelled still shows up.
func (c *Client) ListPatientIDs(ctx context.Context, from, to time.Time) ([]string, error) {
	rangeFilters := []string{
		"starts_at:>=" + from.UTC().Format(time.RFC3339),
		"starts_at:<=" + to.UTC().Format(time.RFC3339),
	}

	active, err := c.listAppointments(ctx, url.Values{"q[]": rangeFilters})
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments between %s and %s: %w", from, to, err)
	}

	cancelledAppointments, err := c.listAppointments(ctx, url.Values{
		"q[]": append(append([]string(nil), rangeFilters...), "cancelled_at:*"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cancelled appointments between %s and %s: %w", from, to, err)
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, len(active)+len(cancelledAppointments))
	for _, a := range append(active, cancelledAppointments...) {
		id := a.Patient.ResourceID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteRating stores the letter grade in the appointment's notes, replacing
// any previous "Rated X" marker.
func (c *Client) WriteRating(ctx context.Context, appointmentID, grade string) error {
	var appointment Appointment
	if err := c.get(ctx, "appointments/"+appointmentID, nil, &appointment); err != nil {
		return fmt.Errorf("failed to get appointment %s: %w", appointmentID, err)
	}

	rating := "Rated " + grade
	notes := appointment.Notes
	if ratingPattern.MatchString(notes) {
		notes = ratingPattern.ReplaceAllString(notes, rating)
	} else if notes == "" {
		notes = rating
	} else {
		notes = notes + "\n" + rating
	}

	body, err := json.Marshal(map[string]string{"notes": notes})
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}
	if err := c.do(ctx, http.MethodPut, "appointments/"+appointmentID, nil, body, nil); err != nil {
		return fmt.Errorf("failed to update appointment %s notes: %w", appointmentID, err)
	}
	return nil
}

func (c *Client) listAppointments(ctx context.Context, query url.Values) ([]Appointment, error) {
	var appointments []Appointment
	for page := 1; ; page++ {
		var envelope struct {
			IndividualAppointments []Appointment `json:"individual_appointments"`
		}
		if err := c.get(ctx, "individual_appointments", c.paged(query, page), &envelope); err != nil {
			return nil, err
		}
		appointments = append(appointments, envelope.IndividualAppointments...)
		if len(envelope.IndividualAppointments) < c.perPage {
			return appointments, nil
		}
	}
}

func (c *Client) paged(query url.Values, page int) url.Values {
	paged := url.Values{}
	for key, values := range query {
		paged[key] = append([]string(nil), values...)
	}
	paged.Set("page", strconv.Itoa(page))
	paged.Set("per_page", strconv.Itoa(c.perPage))
	return paged
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	// One fixed-delay retry on rate limiting; further 429s surface as errors.
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		log.Printf("Cliniko rate limited on %s %s, retrying after %s", method, path, c.retryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
		resp, err = c.send(ctx, method, path, query, body)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cliniko returned %d for %s %s: %s", resp.StatusCode, method, path, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	return resp, nil
}
