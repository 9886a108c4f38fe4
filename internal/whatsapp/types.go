package whatsapp

// Message payload shapes for the upstream /v1/messages endpoint.

// TextMessage is a free-form text send.
type TextMessage struct {
	To   string   `json:"to"`
	Type string   `json:"type"`
	Text TextBody `json:"text"`
}

type TextBody struct {
	Body string `json:"body"`
}

// TemplateMessage is an hsm (highly structured message) template send.
type TemplateMessage struct {
	To   string  `json:"to"`
	TTL  string  `json:"ttl,omitempty"`
	Type string  `json:"type"`
	HSM  HSMBody `json:"hsm"`
}

type HSMBody struct {
	Namespace         string   `json:"namespace"`
	ElementName       string   `json:"element_name"`
	Language          Language `json:"language"`
	LocalizableParams []Param  `json:"localizable_params,omitempty"`
}

type Language struct {
	Policy string `json:"policy"`
	Code   string `json:"code"`
}

type Param struct {
	Default string `json:"default"`
}

// SendResponse is the acknowledgement returned by /v1/messages.
type SendResponse struct {
	Messages []MessageRef `json:"messages"`
}

type MessageRef struct {
	ID string `json:"id"`
}

// Template is one entry of the upstream template catalog. Pass-through
// value object: not persisted locally.
type Template struct {
	Name           string `json:"name"`
	Namespace      string `json:"namespace,omitempty"`
	Language       string `json:"language"`
	Category       string `json:"category,omitempty"`
	Status         string `json:"status"`
	RejectedReason string `json:"rejected_reason,omitempty"`
}

type templatesResponse struct {
	WabaTemplates []Template `json:"waba_templates"`
}
