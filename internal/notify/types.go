package notify

// Channel values match the templates.type column.
const (
	ChannelEmail = "email"
	// SMS templates are stored with type "parent" (messages to parents are
	// the only SMS use case the product has).
	ChannelSMS = "parent"
)

type EmailRecipient struct {
	Email     string            `json:"email"     binding:"required,email"`
	Variables map[string]string `json:"variables" binding:"required"`
}

type EmailGroup struct {
	TemplateID int64            `json:"template_id" binding:"required"`
	Subject    string           `json:"subject"     binding:"required"`
	Recipients []EmailRecipient `json:"recipients"  binding:"required,min=1,dive"`
}

type EmailRequest struct {
	Groups []EmailGroup `json:"groups" binding:"required,min=1,dive"`
}

type SMSRecipient struct {
	MobileNo  string            `json:"mobile_no"`
	Variables map[string]string `json:"variables" binding:"required"`
}

type SMSGroup struct {
	TemplateID int64          `json:"template_id" binding:"required"`
	Recipients []SMSRecipient `json:"recipients"  binding:"required,min=1,dive"`
}

type SMSRequest struct {
	Groups []SMSGroup `json:"groups" binding:"required,min=1,dive"`
}

// EmailJob is the wire format published to the email queue, one per
// recipient. The worker never writes back to the delivery log; the logged
// status for email is the enqueue outcome.
type EmailJob struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}
