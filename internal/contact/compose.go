package contact

import (
	"strings"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/pantry/email"
)

// SubmittedLayout formats the Submitted line of the mail body.
const SubmittedLayout = "January 2, 2006, 3:04 pm MST"

// Submission is one sanitized, validated contact request.
type Submission struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Message       string
	SubmittedAt   time.Time
	ClientAddress string
}

// Body renders the plain-text mail body. The phone line is omitted when
// no phone was given.
func (s Submission) Body() string {
	addr := s.ClientAddress
	if addr == "" {
		addr = "Not available"
	}

	var b strings.Builder
	b.WriteString("You have received a new message from your website contact form.\n\n")
	b.WriteString("Here are the details:\n\n")
	b.WriteString("================\n")
	b.WriteString("Name: " + s.Name + "\n")
	b.WriteString("Email: " + s.Email + "\n")
	if s.Phone != "" {
		b.WriteString("Phone: " + s.Phone + "\n")
	}
	b.WriteString("Submitted: " + s.SubmittedAt.Format(SubmittedLayout) + "\n")
	b.WriteString("IP Address: " + addr + "\n\n")
	b.WriteString("Message:\n")
	b.WriteString("========\n")
	b.WriteString(s.Message + "\n")
	return b.String()
}

// DefaultSubject is used when the mail config leaves subject empty.
func DefaultSubject(siteName string) string {
	return "New Contact Form Submission from " + siteName
}

// Compose addresses the submission according to the mail config. Replies
// go to the submitter; bounces go to the no-reply address.
func Compose(mc *config.MailConfig, siteName string, s Submission) email.Message {
	subject := mc.Message.Subject
	if subject == "" {
		subject = DefaultSubject(siteName)
	}
	return email.Message{
		FromAddress:    mc.Message.FromAddress,
		FromName:       mc.Message.FromName,
		To:             []string{mc.Message.Recipient},
		ReplyToAddress: s.Email,
		ReplyToName:    s.Name,
		EnvelopeFrom:   mc.Message.NoReplyAddress,
		Subject:        subject,
		TextBody:       s.Body(),
	}
}
