package notify

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/logging"
)

// lookupTimeout bounds the recipient queries for one commit.
const lookupTimeout = time.Minute

// RecipientStore finds who should hear about a question.
type RecipientStore interface {
	ListRecipientsForQuestion(ctx context.Context, q core.Question) ([]core.Recipient, error)
}

// ImportNotifier tells recipients about questions created by a commit. Each
// recipient gets one message listing every new question that targets them.
type ImportNotifier struct {
	recipients RecipientStore
	dispatcher *Dispatcher
	link       string
}

// NewImportNotifier returns a notifier; link is the address placed in
// messages.
func NewImportNotifier(recipients RecipientStore, dispatcher *Dispatcher, link string) *ImportNotifier {
	return &ImportNotifier{recipients: recipients, dispatcher: dispatcher, link: link}
}

// QuestionsCreated implements core.CreationNotifier. Recipients are looked
// up on the dispatcher, so the caller returns at once and a cancelled ctx
// does not lose messages for questions already stored. A failed recipient
// lookup skips that question and is logged.
func (n *ImportNotifier) QuestionsCreated(ctx context.Context, questions []core.Question) {
	qs := append([]core.Question(nil), questions...)
	n.dispatcher.NotifyLater(ctx, func(ctx context.Context) []Notification {
		ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()
		return n.build(ctx, qs)
	})
}

func (n *ImportNotifier) build(ctx context.Context, questions []core.Question) []Notification {
	log := logging.FromContext(ctx)

	type group struct {
		recipient core.Recipient
		questions []core.Question
	}
	var order []string
	groups := make(map[string]*group)

	for _, q := range questions {
		rs, err := n.recipients.ListRecipientsForQuestion(ctx, q)
		if err != nil {
			log.Error("list recipients failed", "error", err, "question_id", q.ID)
			continue
		}
		for _, r := range rs {
			key := strings.ToLower(strings.TrimSpace(r.Email))
			g, ok := groups[key]
			if !ok {
				g = &group{recipient: r}
				groups[key] = g
				order = append(order, key)
			}
			g.questions = append(g.questions, q)
		}
	}

	ns := make([]Notification, 0, len(order))
	for _, key := range order {
		g := groups[key]
		ns = append(ns, Notification{
			Recipient: g.recipient,
			Template:  TemplateNewQuestions,
			Data:      NewQuestionsData{Recipient: g.recipient, Questions: g.questions, Link: n.link},
		})
	}

	log.Info("queueing import notifications", "questions", len(questions), "recipients", len(ns))
	return ns
}
