package governor

import (
	"context"
	"log"
	"time"

	"github.com/edulabs/tutor-gateway/internal/chat"
	"github.com/edulabs/tutor-gateway/internal/quota"
)

// Admission is the result of a successful admission pass: the request may
// proceed to the AI call with the replayed history and the usage figures
// already gathered along the way.
type Admission struct {
	History     []chat.Turn
	TokensUsed  int
	TokenBudget int
}

// Outcome is what the caller reports back after the external AI call
// succeeded.
type Outcome struct {
	Message  string
	Response string
	Tokens   int // Total tokens the provider reported, not an estimate
}

// Governor runs the ordered admission pipeline for one chat request and
// records usage after the AI call. It holds no mutable state of its own;
// all coordination happens through the store.
type Governor struct {
	checks []Check
	ledger *quota.Ledger
	buffer *chat.Buffer
}

func New(ledger *quota.Ledger, buffer *chat.Buffer, checks ...Check) *Governor {
	return &Governor{
		checks: checks,
		ledger: ledger,
		buffer: buffer,
	}
}

// Begin runs every admission check in order, short-circuiting on the first
// rejection, then loads the conversational window. A rejection leaves no
// trace beyond the rate-limit point the check itself consumed.
func (g *Governor) Begin(ctx context.Context, id Identity) (*Admission, error) {
	adm := &Admission{}

	for _, check := range g.checks {
		if err := check.Admit(ctx, id, adm); err != nil {
			return nil, err
		}
	}

	history, err := g.buffer.Recent(ctx, id.UserID, chat.MaxTurns)
	if err != nil {
		return nil, err
	}
	adm.History = history

	return adm, nil
}

// Record performs the two post-call side effects: the ledger increment and
// the buffer append. The AI answer has already been paid for, so a failure
// here must not deny it: errors are logged and the best-known total is
// returned for the response payload.
func (g *Governor) Record(ctx context.Context, id Identity, adm *Admission, out Outcome) int {
	total := adm.TokensUsed + out.Tokens

	newTotal, err := g.ledger.Increment(ctx, id.UserID, out.Tokens)
	if err != nil {
		log.Printf("governor: token recording failed for user %s (%d tokens uncounted): %v", id.UserID, out.Tokens, err)
	} else {
		total = newTotal
	}

	now := time.Now().UTC()
	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: out.Message, Timestamp: now},
		{Role: chat.RoleAssistant, Content: out.Response, Tokens: out.Tokens, Timestamp: now},
	}

	for _, turn := range turns {
		if err := g.buffer.Append(ctx, id.UserID, turn); err != nil {
			log.Printf("governor: history append failed for user %s: %v", id.UserID, err)
			break
		}
	}

	return total
}
