package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/viper"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/mail"
)

// Template names.
const (
	TemplateNewQuestions = "new_questions"
	TemplateDailyDigest  = "daily_digest"
	TemplateReminder     = "pending_reminder"
)

// NewQuestionsData is rendered into TemplateNewQuestions.
type NewQuestionsData struct {
	Recipient core.Recipient
	Questions []core.Question
	Link      string
}

// DigestData is rendered into TemplateDailyDigest.
type DigestData struct {
	Recipient core.Recipient
	Questions []core.Question
	Date      time.Time
	Link      string
}

// ReminderData is rendered into TemplateReminder.
type ReminderData struct {
	Recipient core.Recipient
	Pending   int
	Link      string
}

type templateSource struct {
	Subject string
	Text    string
	HTML    string
}

var builtinTemplates = map[string]templateSource{
	TemplateNewQuestions: {
		Subject: `{{len .Questions}} new question{{if gt (len .Questions) 1}}s{{end}} for you`,
		Text: `Hello {{.Recipient.Name}},

New questions were published for your department:
{{range .Questions}}
  - {{.Text}} (release {{date .ReleaseDate}}){{end}}

Answer them at {{.Link}}
`,
	},
	TemplateDailyDigest: {
		Subject: `Questions released {{date .Date}}`,
		Text: `Hello {{.Recipient.Name}},

Today's questions:
{{range .Questions}}
  - [{{.Category}}] {{.Text}}{{end}}

Answer them at {{.Link}}
`,
	},
	TemplateReminder: {
		Subject: `You have {{.Pending}} question{{if gt .Pending 1}}s{{end}} waiting`,
		Text: `Hello {{.Recipient.Name}},

You still have {{.Pending}} released question{{if gt .Pending 1}}s{{end}} without an answer.

Answer them at {{.Link}}
`,
	},
}

var templateFuncs = map[string]any{
	"date":  func(t time.Time) string { return t.Format(core.DateLayout) },
	"upper": strings.ToUpper,
}

type compiled struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Templates renders notification messages.
type Templates struct {
	byName map[string]compiled
}

// LoadTemplates compiles the built-in templates, overridden by the YAML file
// at path when path is not empty. The file layout is
//
//	templates:
//	  new_questions:
//	    subject: "..."
//	    text: "..."
//	    html: "..."
//
// Keys that are absent keep the built-in value.
func LoadTemplates(path string) (*Templates, error) {
	sources := make(map[string]templateSource, len(builtinTemplates))
	for name, src := range builtinTemplates {
		sources[name] = src
	}

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read templates %s: %w", path, err)
		}
		for name, src := range sources {
			key := "templates." + name
			if v.IsSet(key + ".subject") {
				src.Subject = v.GetString(key + ".subject")
			}
			if v.IsSet(key + ".text") {
				src.Text = v.GetString(key + ".text")
			}
			if v.IsSet(key + ".html") {
				src.HTML = v.GetString(key + ".html")
			}
			sources[name] = src
		}
	}

	t := &Templates{byName: make(map[string]compiled, len(sources))}
	for name, src := range sources {
		c, err := compile(name, src)
		if err != nil {
			return nil, err
		}
		t.byName[name] = c
	}
	return t, nil
}

func compile(name string, src templateSource) (compiled, error) {
	var c compiled
	var err error

	if c.subject, err = template.New(name + ".subject").Funcs(templateFuncs).Option("missingkey=error").Parse(src.Subject); err != nil {
		return c, fmt.Errorf("template %s subject: %w", name, err)
	}
	if c.text, err = template.New(name + ".text").Funcs(templateFuncs).Option("missingkey=error").Parse(src.Text); err != nil {
		return c, fmt.Errorf("template %s text: %w", name, err)
	}
	if src.HTML != "" {
		if c.html, err = htmltemplate.New(name + ".html").Funcs(templateFuncs).Parse(src.HTML); err != nil {
			return c, fmt.Errorf("template %s html: %w", name, err)
		}
	}
	return c, nil
}

// Render executes the named template with data.
func (t *Templates) Render(name string, data any) (mail.Message, error) {
	c, ok := t.byName[name]
	if !ok {
		return mail.Message{}, fmt.Errorf("unknown template %q", name)
	}

	var subject, text, html bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return mail.Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.text.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if c.html != nil {
		if err := c.html.Execute(&html, data); err != nil {
			return mail.Message{}, fmt.Errorf("render %s html: %w", name, err)
		}
	}

	return mail.Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
