package dispatch

// Chat messages carry a short prefix so recipients can tell an operator
// reply from an automated notification.
const (
	operatorPrefix     = "\U0001F642\U0001F4AC\n"
	notificationPrefix = "\U0001F916\U0001F4AC\n"
)

// MessageRequest is a free-form text send authored by an operator.
type MessageRequest struct {
	BusinessAccount string `json:"business_account" validate:"required"`
	To              string `json:"to" validate:"required"`
	Text            string `json:"text" validate:"required"`
}

// NotificationRequest is an automated text send.
type NotificationRequest struct {
	BusinessAccount string `json:"business_account" validate:"required"`
	To              string `json:"to" validate:"required"`
	Text            string `json:"text" validate:"required"`
}

// TemplateRequest is a pre-approved template send.
type TemplateRequest struct {
	BusinessAccount string   `json:"business_account" validate:"required"`
	To              string   `json:"to" validate:"required"`
	Namespace       string   `json:"namespace" validate:"required"`
	ElementName     string   `json:"element_name" validate:"required"`
	LanguageCode    string   `json:"language_code" validate:"required"`
	Params          []string `json:"params,omitempty"`
	TTL             string   `json:"ttl,omitempty"`
}
