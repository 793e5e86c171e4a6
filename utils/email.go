package utils

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"RatedApp/models"

	"gopkg.in/gomail.v2"
)

func SendResetCodeEmail(email, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", os.Getenv("SMTP_USER"))
	m.SetHeader("To", email)
	m.SetHeader("Subject", "RatedApp Password Reset Code")

	// Set the plain text body
	m.SetBody("text/plain", "Your password reset code is: "+code)

	// Set the HTML body
	htmlBody := `
	<!DOCTYPE html>
	<html>
	<head>
		<title>Password Reset Code</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				background-color: #f4f4f4;
				margin: 0;
				padding: 0;
			}
			.container {
				background-color: #ffffff;
				margin: 20px auto;
				padding: 20px;
				border-radius: 8px;
				box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);
				max-width: 600px;
			}
			h1 {
				color: #333333;
			}
			p {
				color: #666666;
			}
			.code {
				font-weight: bold;
				color: #007bff;
			}
		</style>
	</head>
	<body>
		<div class="container">
			<h1>Password Reset Code</h1>
			<p>Your password reset code is:</p>
			<p class="code">` + code + `</p>
			<p>If you did not request a password reset, please ignore this email.</p>
		</div>
	</body>
	</html>
	`
	m.AddAlternative("text/html", htmlBody)

	return dialAndSend(m)
}

// SendJobSummaryEmail mails the outcome of one analytics run to the clinic
// administrator.
func SendJobSummaryEmail(email string, job *models.AnalyticsJob) error {
	m := gomail.NewMessage()
	m.SetHeader("From", os.Getenv("SMTP_USER"))
	m.SetHeader("To", email)
	m.SetHeader("Subject", fmt.Sprintf("Analytics job #%d %s", job.ID, job.Status))

	plain := fmt.Sprintf(
		"Analytics job #%d finished with status %s.\nPatients processed: %d\nPatients failed: %d\nRange: %s to %s\n",
		job.ID, job.Status, job.ProcessedCount, job.FailedCount,
		job.StartDate.Format("2006-01-02"), job.EndDate.Format("2006-01-02"),
	)
	m.SetBody("text/plain", plain)

	htmlBody := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<title>Analytics Job Summary</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				background-color: #f4f4f4;
				margin: 0;
				padding: 0;
			}
			.container {
				background-color: #ffffff;
				margin: 20px auto;
				padding: 20px;
				border-radius: 8px;
				box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);
				max-width: 600px;
			}
			h1 {
				color: #333333;
			}
			p {
				color: #666666;
			}
			.count {
				font-weight: bold;
				color: #007bff;
			}
		</style>
	</head>
	<body>
		<div class="container">
			<h1>Analytics Job #%d: %s</h1>
			<p>Patients processed: <span class="count">%d</span></p>
			<p>Patients failed: <span class="count">%d</span></p>
			<p>Date range: %s to %s</p>
		</div>
	</body>
	</html>
	`, job.ID, job.Status, job.ProcessedCount, job.FailedCount,
		job.StartDate.Format("2006-01-02"), job.EndDate.Format("2006-01-02"))
	m.AddAlternative("text/html", htmlBody)

	return dialAndSend(m)
}

// dialAndSend builds an SMTP dialer from environment configuration and sends
// the message.
func dialAndSend(m *gomail.Message) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPortStr := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	smtpPort, err := strconv.Atoi(smtpPortStr)
	if err != nil {
		log.Printf("Invalid SMTP_PORT value: %v", err)
		return fmt.Errorf("invalid SMTP_PORT value: %w", err)
	}

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	return d.DialAndSend(m)
}
