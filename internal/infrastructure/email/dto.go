package email

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}
