package cliniko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		UserAgent:         "RatedApp Test",
		RequestsPerSecond: 1000,
	})
	client.retryDelay = 10 * time.Millisecond
	return client
}

func TestGetPatientSendsBasicAuth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test-key", user)
		assert.Equal(t, "", pass)
		assert.Equal(t, "/patients/42", r.URL.Path)

		fmt.Fprint(w, `{"id":42,"first_name":"Ada","last_name":"Lovelace","date_of_birth":"1990-06-01"}`)
	}))

	patient, err := client.GetPatient(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", patient.ID.String())
	assert.Equal(t, "1990-06-01", patient.DateOfBirth)
}

func TestGetInvoicesPaginates(t *testing.T) {
	pagesServed := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		assert.Equal(t, "patient_id:=7", r.URL.Query().Get("q[]"))
		pagesServed++

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"invoices":[{"id":1,"created_at":"2026-01-01T00:00:00Z","total_amount":"120.50"},{"id":2,"created_at":"2026-01-02T00:00:00Z","total_amount":"80.00"}]}`)
		case "2":
			fmt.Fprint(w, `{"invoices":[{"id":3,"created_at":"2026-01-03T00:00:00Z","total_amount":"45.00","closed_at":"2026-01-10T00:00:00Z"}]}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	client.perPage = 2

	invoices, err := client.GetInvoices(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 2, pagesServed)
	require.Len(t, invoices, 3)
	assert.InDelta(t, 120.50, invoices[0].Amount(), 0.001)
	assert.Nil(t, invoices[0].ClosedAt)
	assert.NotNil(t, invoices[2].ClosedAt)
}

func TestGetAppointmentsMergesCancelledAndDeduplicates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/individual_appointments", r.URL.Path)
		filters := r.URL.Query()["q[]"]

		if len(filters) == 2 {
			// Cancelled fetch; overlaps with the active listing on ID 11.
			fmt.Fprint(w, `{"individual_appointments":[{"id":11,"starts_at":"2026-02-01T10:00:00Z","cancelled_at":"2026-01-20T09:00:00Z"},{"id":12,"starts_at":"2026-02-05T10:00:00Z","cancelled_at":"2026-02-01T09:00:00Z"}]}`)
			return
		}
		fmt.Fprint(w, `{"individual_appointments":[{"id":10,"starts_at":"2026-01-15T10:00:00Z"},{"id":11,"starts_at":"2026-02-01T10:00:00Z","cancelled_at":"2026-01-20T09:00:00Z"}]}`)
	}))

	appointments, err := client.GetAppointments(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, appointments, 3)

	ids := make(map[string]bool)
	for _, a := range appointments {
		ids[a.ID.String()] = true
	}
	assert.True(t, ids["10"] && ids["11"] && ids["12"])
}

func TestGetReferralCount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/referral_sources", r.URL.Path)
		assert.Equal(t, "referring_patient_id:=7", r.URL.Query().Get("q[]"))
		fmt.Fprint(w, `{"referral_sources":[{"id":1},{"id":2},{"id":3}]}`)
	}))

	count, err := client.GetReferralCount(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListPatientIDsExtractsLinkedPatients(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filters := r.URL.Query()["q[]"]
		assert.Contains(t, filters[0], "starts_at:>=")
		assert.Contains(t, filters[1], "starts_at:<=")

		if len(filters) == 3 {
			assert.Equal(t, "cancelled_at:*", filters[2])
			fmt.Fprint(w, `{"individual_appointments":[]}`)
			return
		}
		fmt.Fprint(w, `{"individual_appointments":[
			{"id":1,"starts_at":"2026-01-05T10:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/30"}}},
			{"id":2,"starts_at":"2026-01-06T10:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/20"}}},
			{"id":3,"starts_at":"2026-01-07T10:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/30"}}}
		]}`)
	}))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	ids, err := client.ListPatientIDs(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, []string{"20", "30"}, ids)
}

func TestListPatientIDsIncludesCancelledOnlyPatients(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filters := r.URL.Query()["q[]"]

		if len(filters) == 3 {
			// Patient 40's only booking in the range was cancelled; patient 20
			// also appears in the default listing.
			fmt.Fprint(w, `{"individual_appointments":[
				{"id":4,"starts_at":"2026-01-10T10:00:00Z","cancelled_at":"2026-01-08T09:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/40"}}},
				{"id":5,"starts_at":"2026-01-12T10:00:00Z","cancelled_at":"2026-01-09T09:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/20"}}}
			]}`)
			return
		}
		fmt.Fprint(w, `{"individual_appointments":[
			{"id":2,"starts_at":"2026-01-06T10:00:00Z","patient":{"links":{"self":"https://api.example.com/v1/patients/20"}}}
		]}`)
	}))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	ids, err := client.ListPatientIDs(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, []string{"20", "40"}, ids)
}

func TestWriteRatingReplacesExistingMarker(t *testing.T) {
	var updated map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appointments/55", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"id":55,"starts_at":"2026-01-15T10:00:00Z","notes":"Arrived late. Rated B"}`)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	require.NoError(t, client.WriteRating(context.Background(), "55", "A+"))
	assert.Equal(t, "Arrived late. Rated A+", updated["notes"])
}

func TestWriteRatingAppendsWhenNoMarker(t *testing.T) {
	var updated map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"id":55,"starts_at":"2026-01-15T10:00:00Z","notes":"Needs follow-up"}`)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		}
	}))

	require.NoError(t, client.WriteRating(context.Background(), "55", "C"))
	assert.Equal(t, "Needs follow-up\nRated C", updated["notes"])
}

func TestRetriesOnceOnRateLimit(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":42,"first_name":"Ada"}`)
	}))

	patient, err := client.GetPatient(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "Ada", patient.FirstName)
}

func TestServerErrorSurfaces(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.GetPatient(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
