package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/quizdesk/internal/core"
)

func sampleQuestions() []core.Question {
	release := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	return []core.Question{
		{ID: 1, QuestionDraft: core.QuestionDraft{Text: "What is 2+2?", Category: "Math", ReleaseDate: release}},
		{ID: 2, QuestionDraft: core.QuestionDraft{Text: "Name a prime", Category: "Math", ReleaseDate: release}},
	}
}

func TestTemplates_Builtins(t *testing.T) {
	tpl, err := LoadTemplates("")
	require.NoError(t, err)
	r := core.Recipient{Name: "Ana", Email: "ana@example.com"}

	msg, err := tpl.Render(TemplateNewQuestions, NewQuestionsData{Recipient: r, Questions: sampleQuestions(), Link: "http://quiz"})
	require.NoError(t, err)
	assert.Equal(t, "2 new questions for you", msg.Subject)
	assert.Contains(t, msg.Text, "Hello Ana")
	assert.Contains(t, msg.Text, "What is 2+2? (release 03/01/2026)")
	assert.Contains(t, msg.Text, "http://quiz")
	assert.Empty(t, msg.HTML)

	msg, err = tpl.Render(TemplateDailyDigest, DigestData{Recipient: r, Questions: sampleQuestions()[:1], Date: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "Questions released 03/01/2026", msg.Subject)
	assert.Contains(t, msg.Text, "[Math] What is 2+2?")

	msg, err = tpl.Render(TemplateReminder, ReminderData{Recipient: r, Pending: 1})
	require.NoError(t, err)
	assert.Equal(t, "You have 1 question waiting", msg.Subject)
}

func TestTemplates_UnknownName(t *testing.T) {
	tpl, err := LoadTemplates("")
	require.NoError(t, err)
	_, err = tpl.Render("nope", nil)
	assert.Error(t, err)
}

func TestTemplates_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	yaml := `templates:
  pending_reminder:
    subject: "Lembrete: {{.Pending}} pendente(s)"
    html: "<p>Olá {{.Recipient.Name}}</p>"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)

	msg, err := tpl.Render(TemplateReminder, ReminderData{Recipient: core.Recipient{Name: "<Ana>"}, Pending: 3})
	require.NoError(t, err)
	assert.Equal(t, "Lembrete: 3 pendente(s)", msg.Subject)
	assert.Equal(t, "<p>Olá &lt;Ana&gt;</p>", msg.HTML)
	assert.Contains(t, msg.Text, "You still have 3", "text keeps the built-in")

	_, err = tpl.Render(TemplateNewQuestions, NewQuestionsData{Questions: sampleQuestions()})
	assert.NoError(t, err, "templates without overrides keep working")
}

func TestTemplates_BadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  daily_digest:\n    subject: \"{{.Date\"\n"), 0o600))

	_, err := LoadTemplates(path)
	assert.Error(t, err)

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
