package mailer

import "context"

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mailer is any service that can deliver a Message. Delivery failures are
// returned to the caller and never retried here.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
