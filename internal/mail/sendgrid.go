package mail

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridTransport delivers through the SendGrid v3 API.
type SendGridTransport struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendGridTransport returns a transport authenticating with key.
func NewSendGridTransport(key string, from mail.Address) *SendGridTransport {
	return &SendGridTransport{
		key:  key,
		host: sendGridHost,
		from: sgmail.NewEmail(from.Name, from.Address),
	}
}

func (t *SendGridTransport) prepare(to string, msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", to))

	m := sgmail.NewV3Mail()
	m.SetFrom(t.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (t *SendGridTransport) Send(ctx context.Context, to string, msg Message) error {
	req := sendgrid.GetRequest(t.key, sendGridEndpoint, t.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(t.prepare(to, msg))

	res, err := t.do(ctx, req)
	if err != nil {
		return &TransportError{Transport: "sendgrid", To: to, Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &TransportError{
			Transport: "sendgrid",
			To:        to,
			Err:       fmt.Errorf("status %d: %s", res.StatusCode, res.Body),
		}
	}
	return nil
}

// do sends req bound to ctx so a cancelled dispatch aborts the HTTP call.
func (t *SendGridTransport) do(ctx context.Context, req rest.Request) (*rest.Response, error) {
	hreq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, err
	}
	res, err := rest.DefaultClient.MakeRequest(hreq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}
