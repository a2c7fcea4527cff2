package service

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateFuncs = map[string]any{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("Jan 2, 2006") },
}

type composer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

func NewComposer() (notificationdomain.Composer, error) {
	text, err := texttemplate.New("text").Funcs(texttemplate.FuncMap(templateFuncs)).
		ParseFS(templateFS, "templates/sms_*.tmpl", "templates/push.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.New("html").Funcs(htmltemplate.FuncMap(templateFuncs)).
		ParseFS(templateFS, "templates/email.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	return &composer{text: text, html: html}, nil
}

func (c *composer) InApp(req notificationdomain.DispatchRequest) (string, string, error) {
	payload, err := c.Push(req)
	if err != nil {
		return "", "", err
	}
	return payload.Title, payload.Body, nil
}

func (c *composer) Push(req notificationdomain.DispatchRequest) (notificationdomain.PushPayload, error) {
	title, err := c.renderText("push_"+string(req.Kind)+"_title", req)
	if err != nil {
		return notificationdomain.PushPayload{}, err
	}
	body, err := c.renderText("push_"+string(req.Kind)+"_body", req)
	if err != nil {
		return notificationdomain.PushPayload{}, err
	}
	return notificationdomain.PushPayload{Title: title, Body: body}, nil
}

func (c *composer) SMS(req notificationdomain.DispatchRequest) (string, error) {
	return c.renderText("sms_"+string(req.Kind), req)
}

func (c *composer) Email(req notificationdomain.DispatchRequest) (string, string, error) {
	var buf bytes.Buffer
	if err := c.html.ExecuteTemplate(&buf, "email_"+string(req.Kind), req); err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("Water Bill #%s", req.BillNo)
	if req.Kind == notificationdomain.KindBillOverdue {
		subject = fmt.Sprintf("Overdue Water Bill #%s", req.BillNo)
	}
	return subject, buf.String(), nil
}

func (c *composer) renderText(name string, req notificationdomain.DispatchRequest) (string, error) {
	var buf bytes.Buffer
	if err := c.text.ExecuteTemplate(&buf, name, req); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
