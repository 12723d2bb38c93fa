package core

import (
	"fmt"
	"net/mail"
	"strings"
	"testing"
)

// recordingLogger captures error logs so template parse failures surface
// as test failures instead of silent cache misses.
type recordingLogger struct {
	errs []string
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) {}
func (l *recordingLogger) Info(msg string, args ...interface{})  {}
func (l *recordingLogger) Warn(msg string, args ...interface{})  {}
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.errs = append(l.errs, msg) }
func (l *recordingLogger) Fatal(msg string, args ...interface{}) { l.errs = append(l.errs, msg) }

func TestParseEmailTemplates(t *testing.T) {
	conf := &Config{TestMode: true, FrontendBaseURL: "http://localhost:3000"}
	logger := &recordingLogger{}

	ParseEmailTemplates(conf, logger)
	if len(logger.errs) > 0 {
		t.Fatalf("ParseEmailTemplates() logged errors: %v", logger.errs)
	}

	for _, name := range []string{"email_verify", "password_reset"} {
		entry, ok := templates[name]
		if !ok {
			t.Errorf("template %q not cached", name)
			continue
		}
		for _, ext := range []string{".txt", ".gohtml"} {
			if _, ok = entry[ext]; !ok {
				t.Errorf("template %q missing %s variant", name, ext)
			}
		}
	}
}

func TestEmailMessage_Render(t *testing.T) {
	conf := &Config{TestMode: true, FrontendBaseURL: "http://localhost:3000"}
	logger := &recordingLogger{}
	ParseEmailTemplates(conf, logger)

	msg := EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Subject:      "Verify your email",
		TemplateName: "email_verify",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{Name: "Jane", UID: "dWlk", Token: "tok-123"},
	}
	if err := msg.Render(conf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !msg.HasContent() {
		t.Fatal("Render() produced no content")
	}
	link := fmt.Sprintf("%s/verify-email?uid=%s&token=%s", conf.FrontendBaseURL, "dWlk", "tok-123")
	if !strings.Contains(msg.TextContent, link) {
		t.Errorf("TextContent missing verification link; got %q", msg.TextContent)
	}
	if !strings.Contains(msg.HTMLContent, "tok-123") {
		t.Errorf("HTMLContent missing token; got %q", msg.HTMLContent)
	}
	if !strings.Contains(msg.TextContent, "The Ustawi Team") {
		t.Errorf("TextContent missing base layout footer; got %q", msg.TextContent)
	}
}
