package controllers

import (
	"RatedApp/handlers"
	"RatedApp/middlewares"

	"github.com/gin-gonic/gin"
)

// SetupRatedRoutes wires the patient rating, configuration and analytics job
// routes. Every route requires a staff token; mutation of configurations and
// jobs is limited to Admin and Manager.
func SetupRatedRoutes(router *gin.Engine, patientHandler *handlers.PatientHandler, configHandler *handlers.ConfigHandler, jobHandler *handlers.JobHandler) {
	staff := router.Group("/").Use(middlewares.TokenAuthMiddleware())
	{
		staff.GET("/patients", patientHandler.GetAllPatients)
		staff.GET("/patients/:patient_id", patientHandler.GetPatient)
		staff.GET("/patients/:patient_id/behavior", patientHandler.GetPatientBehavior)
		staff.PUT("/patients/:patient_id/likability", patientHandler.UpdateLikability)

		staff.GET("/configurations/active", configHandler.GetActiveConfiguration)
		staff.GET("/configurations", configHandler.GetAllConfigurations)
		staff.GET("/configurations/:config_id", configHandler.GetConfigurationByID)

		staff.GET("/jobs", jobHandler.GetAllJobs)
		staff.GET("/jobs/:job_id", jobHandler.GetJob)
	}

	managers := router.Group("/").Use(
		middlewares.TokenAuthMiddleware(),
		middlewares.RoleAuthMiddleware("Admin", "Manager"),
	)
	{
		managers.POST("/patients/:patient_id/rate", patientHandler.RatePatient)

		managers.POST("/configurations", configHandler.CreateConfiguration)
		managers.PUT("/configurations/:config_id", configHandler.UpdateConfiguration)
		managers.POST("/configurations/:config_id/apply", configHandler.ApplyConfiguration)
		managers.DELETE("/configurations/:config_id", configHandler.DeleteConfiguration)
		managers.PUT("/configurations/:config_id/age-brackets", configHandler.ReplaceAgeBrackets)
		managers.PUT("/configurations/:config_id/spend-brackets", configHandler.ReplaceSpendBrackets)

		managers.POST("/jobs", jobHandler.StartJob)
		managers.POST("/jobs/:job_id/cancel", jobHandler.CancelJob)
	}
}
