package service

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"flashquest/internal/models"
)

// EmailService sends progress summaries via Amazon SES
type EmailService struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// NewEmailService creates a new email service. An empty fromEmail
// yields a disabled service that skips every send.
func NewEmailService(awsRegion, fromEmail, fromName, appBaseURL string) (*EmailService, error) {
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false}, nil
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(awsRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)
	return &EmailService{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendProgressSummary sends a study progress summary to a learner
func (s *EmailService) SendProgressSummary(ctx context.Context, user *models.User, stats *models.UserStats) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): progress summary to %s", user.Email)
		return nil
	}

	accuracy := 0.0
	if stats.TotalAnswered > 0 {
		accuracy = 100 * float64(stats.TotalCorrect) / float64(stats.TotalAnswered)
	}

	subject := "Your FlashQuest Progress"
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #6c4ae2; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.stat { font-size: 18px; margin: 8px 0; }
		.button { display: inline-block; padding: 12px 30px; background-color: #6c4ae2; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>Keep it up, %s!</h1>
		</div>
		<div class="content">
			<p>Here is how your studying is going:</p>
			<p class="stat">Level <strong>%d</strong> with <strong>%d</strong> XP towards the next level</p>
			<p class="stat">Sessions completed: <strong>%d</strong></p>
			<p class="stat">Answer accuracy: <strong>%.0f%%</strong></p>
			<p class="stat">Total XP earned: <strong>%d</strong></p>
			<p style="text-align: center;">
				<a href="%s" class="button">Study Now</a>
			</p>
		</div>
		<div class="footer">
			<p>This is an automated email from FlashQuest. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, user.Name, stats.CurrentLevel, stats.CurrentXP, stats.TotalSessions, accuracy, stats.TotalXPEarned, s.appBaseURL)

	textBody := fmt.Sprintf(`Keep it up, %s!

Here is how your studying is going:
- Level %d with %d XP towards the next level
- Sessions completed: %d
- Answer accuracy: %.0f%%
- Total XP earned: %d

Study now: %s

---
This is an automated email from FlashQuest. Please do not reply.
`, user.Name, stats.CurrentLevel, stats.CurrentXP, stats.TotalSessions, accuracy, stats.TotalXPEarned, s.appBaseURL)

	return s.sendEmail(ctx, user.Email, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}
