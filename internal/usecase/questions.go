package usecase

import (
	"fmt"
	"strings"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/validation"
)

const (
	openingPrompt = "Hi! Tell me about the job you're looking for: the role, where you'd like to work, and anything else that matters to you."
	retryPrompt   = "Sorry, I had trouble understanding that just now. Could you say it again?"
	flaggedReply  = "I can only help with your job search. Could you rephrase that?"
	resetReply    = "This conversation was reset. Send a new message to start over."
	resetAck      = "Conversation reset. Start a new one any time."
	giveUpReply   = "I still don't know which role to search for. Describe the job title you want, or reset the conversation to start over."
	searchFailed  = "I couldn't reach the job sources right now. Say \"search\" to try again."
)

// followUps holds a question for every field the controller can ask about.
// Fields without an entry are never asked.
var followUps = map[domain.Field]string{
	domain.FieldRole:      "What role or job title are you looking for?",
	domain.FieldLocation:  "Where would you like to work? A city, a region, or remote all work.",
	domain.FieldWorkType:  "Are you looking for full-time, part-time, or contract work?",
	domain.FieldSeniority: "What seniority level fits you: junior, mid, senior, lead, staff, or principal?",
	domain.FieldSalaryMin: "What's the minimum salary you'd accept? For example $120k or 90,000 EUR.",
}

var searchTriggers = []string{
	"search", "find jobs", "find me jobs", "show me jobs", "show jobs", "yes", "go", "go ahead", "let's go",
}

// Questions lists the intake questions in the order the controller asks them.
func Questions() []string {
	out := []string{followUps[domain.FieldRole]}
	for _, f := range domain.FollowUpPriority {
		if q, ok := followUps[f]; ok {
			out = append(out, q)
		}
	}
	return out
}

func hasFollowUp(f domain.Field) bool {
	_, ok := followUps[f]
	return ok
}

func clarification(f domain.Field, res validation.Result) string {
	var hint string
	switch res.Reason {
	case validation.ReasonEmptyAnswer:
		hint = "I didn't catch an answer."
	case validation.ReasonUnrecognizedValue:
		hint = fmt.Sprintf("I didn't recognize that. Please pick one of: %s.", strings.Join(validation.Options(f), ", "))
	case validation.ReasonUnparsableNumber:
		hint = "I couldn't find an amount in that."
	default:
		hint = "Sorry, I didn't get that."
	}
	return hint + " " + followUps[f]
}

var skipPhrases = []string{"skip", "pass", "no preference", "don't care", "dont care", "any", "whatever"}

func normalizeReply(msg string) string {
	return strings.Trim(strings.ToLower(strings.Join(strings.Fields(msg), " ")), ".!? ")
}

func matchesAny(msg string, phrases []string) bool {
	m := normalizeReply(msg)
	for _, p := range phrases {
		if m == p {
			return true
		}
	}
	return false
}

func isSearchTrigger(msg string) bool { return matchesAny(msg, searchTriggers) }

// isSkip reports whether the user declined to answer a follow-up.
func isSkip(msg string) bool { return matchesAny(msg, skipPhrases) }

var unsurePhrases = []string{"i don't know", "i dont know", "dont know", "don't know", "not sure", "no idea", "idk", "none", "nothing"}

// isNoAnswer reports whether msg declines or dodges the question.
func isNoAnswer(msg string) bool { return isSkip(msg) || matchesAny(msg, unsurePhrases) }

func readySummary(in domain.Intent, canSearch bool) string {
	parts := []string{"role: " + in.Role}
	for _, f := range []domain.Field{domain.FieldLocation, domain.FieldWorkType, domain.FieldSeniority, domain.FieldSalaryMin, domain.FieldRemotePreference} {
		if in.Has(f) {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ReplaceAll(string(f), "_", " "), in.Value(f)))
		}
	}
	msg := "Thanks, I have what I need. " + strings.Join(parts, "; ") + "."
	if canSearch {
		msg += " Say \"search\" when you want me to find matching jobs."
	}
	return msg
}

func resultsSummary(resp domain.SearchResponse) string {
	if len(resp.Jobs) == 0 {
		return "I didn't find any matching jobs right now. You can refine your answers and search again."
	}
	top := resp.Jobs[0]
	where := top.Title
	if top.Company != "" {
		where += " at " + top.Company
	}
	if resp.JobsFound == 1 {
		return fmt.Sprintf("I found 1 matching job: %s.", where)
	}
	return fmt.Sprintf("I found %d matching jobs. The best match is %s.", resp.JobsFound, where)
}
