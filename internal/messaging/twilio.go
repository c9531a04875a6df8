package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API used for sends.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends SMS or WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	api      messageCreator
	from     string
	whatsapp bool
}

// NewTwilioClient builds a REST client from account credentials.
func NewTwilioClient(accountSID, authToken string) *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
}

func NewTwilioSMS(c *twilio.RestClient, from string) *TwilioSender {
	return &TwilioSender{api: c.Api, from: strings.TrimSpace(from)}
}

func NewTwilioWhatsApp(c *twilio.RestClient, from string) *TwilioSender {
	return &TwilioSender{api: c.Api, from: WhatsAppAddress(from), whatsapp: true}
}

type sendResult struct {
	id  string
	err error
}

// Send posts the message. The REST client takes no context, so the call runs
// in its own goroutine and ctx bounds how long the caller waits for it.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if s.from == "" || s.from == "whatsapp:" {
		return "", errors.New("twilio sender has no from number")
	}
	if s.whatsapp {
		to = WhatsAppAddress(to)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	done := make(chan sendResult, 1)
	go func() {
		msg, err := s.api.CreateMessage(params)
		if err != nil {
			done <- sendResult{err: err}
			return
		}
		var id string
		if msg != nil && msg.Sid != nil {
			id = *msg.Sid
		}
		done <- sendResult{id: id}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio send: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("twilio send: %w", res.err)
		}
		return res.id, nil
	}
}

// SignatureValidator checks the X-Twilio-Signature header of inbound webhooks.
type SignatureValidator struct {
	v twclient.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{v: twclient.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the public url and the posted form.
func (s *SignatureValidator) Valid(url string, form map[string]string, signature string) bool {
	if s == nil || signature == "" {
		return false
	}
	return s.v.Validate(url, form, signature)
}
