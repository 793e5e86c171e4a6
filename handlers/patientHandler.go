package handlers

import (
	"RatedApp/services"
	"errors"

	"github.com/gin-gonic/gin"
)

type PatientHandler struct {
	patientService *services.PatientService
	scoringService *services.ScoringService
}

func NewPatientHandler(patientService *services.PatientService, scoringService *services.ScoringService) *PatientHandler {
	return &PatientHandler{patientService: patientService, scoringService: scoringService}
}

func (h *PatientHandler) GetAllPatients(c *gin.Context) {
	patients, err := h.patientService.GetAll(c)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, patients)
}

func (h *PatientHandler) GetPatient(c *gin.Context) {
	id := c.Param("patient_id")
	patient, err := h.patientService.GetByClinikoID(c, id)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if patient == nil {
		c.JSON(404, gin.H{"error": "Patient not found"})
		return
	}
	c.JSON(200, patient)
}

// UpdateLikability stores the manually-entered likability value for a patient.
func (h *PatientHandler) UpdateLikability(c *gin.Context) {
	id := c.Param("patient_id")
	var body struct {
		Likability int `json:"likability"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := h.patientService.UpdateLikability(c, id, body.Likability); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "Likability updated"})
}

// GetPatientBehavior computes the category-by-category behavior report for a
// patient without persisting anything.
func (h *PatientHandler) GetPatientBehavior(c *gin.Context) {
	id := c.Param("patient_id")
	report, err := h.scoringService.GetPatientBehavior(c, id)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveConfiguration) {
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, report)
}

// RatePatient scores a patient, stores the result and writes the grade back
// into the patient's latest appointment notes in Cliniko.
func (h *PatientHandler) RatePatient(c *gin.Context) {
	id := c.Param("patient_id")
	report, err := h.scoringService.RatePatient(c, id)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveConfiguration) {
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, report)
}
