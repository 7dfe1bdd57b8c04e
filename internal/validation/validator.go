// Package validation checks and normalizes a user's answer to a single
// follow-up question.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"jobboard-agent/internal/domain"
)

// Reason explains why an answer was rejected.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonEmptyAnswer       Reason = "EmptyAnswer"
	ReasonUnrecognizedValue Reason = "UnrecognizedValue"
	ReasonUnparsableNumber  Reason = "UnparsableNumber"
	ReasonUnknownField      Reason = "UnknownField"
)

// Result is the outcome of Validate. Amount and Currency are only set for
// salary_min.
type Result struct {
	Accepted   bool
	Normalized string
	Amount     float64
	Currency   string
	Reason     Reason
}

func reject(r Reason) Result {
	return Result{Reason: r}
}

// Synonyms maps each enum field to canonical value -> accepted spellings.
// Every canonical value is also accepted as its own spelling.
var Synonyms = map[domain.Field]map[string][]string{
	domain.FieldWorkType: {
		domain.WorkTypeFullTime: {"full time", "fulltime", "full_time", "ft", "permanent", "salaried"},
		domain.WorkTypeContract: {"contractor", "freelance", "freelancer", "consulting", "consultant", "c2c", "1099", "temporary", "temp"},
		domain.WorkTypePartTime: {"part time", "parttime", "part_time", "pt", "few hours", "side gig", "gig"},
	},
	domain.FieldSeniority: {
		domain.SeniorityJunior:    {"jr", "entry", "entry level", "entry-level", "graduate", "new grad", "associate"},
		domain.SeniorityMid:       {"mid-level", "mid level", "intermediate", "middle"},
		domain.SenioritySenior:    {"sr", "experienced"},
		domain.SeniorityLead:      {"tech lead", "team lead", "lead engineer"},
		domain.SeniorityStaff:     {"staff engineer"},
		domain.SeniorityPrincipal: {"distinguished", "architect"},
	},
	domain.FieldRemotePreference: {
		domain.RemoteRemote: {"wfh", "work from home", "fully remote", "remote only", "anywhere", "distributed", "telecommute"},
		domain.RemoteHybrid: {"flexible", "mixed", "split"},
		domain.RemoteOnsite: {"on site", "on-site", "in office", "in-office", "office", "in person", "in-person"},
	},
}

// Options lists the canonical values of an enum field in a stable order.
func Options(f domain.Field) []string {
	switch f {
	case domain.FieldWorkType:
		return []string{domain.WorkTypeFullTime, domain.WorkTypePartTime, domain.WorkTypeContract}
	case domain.FieldSeniority:
		return []string{domain.SeniorityJunior, domain.SeniorityMid, domain.SenioritySenior, domain.SeniorityLead, domain.SeniorityStaff, domain.SeniorityPrincipal}
	case domain.FieldRemotePreference:
		return []string{domain.RemoteRemote, domain.RemoteHybrid, domain.RemoteOnsite}
	}
	return nil
}

// IsEnum reports whether the field only accepts canonical values.
func IsEnum(f domain.Field) bool {
	_, ok := Synonyms[f]
	return ok
}

// Validate checks raw as an answer for field and returns its normalized
// form. It performs no I/O.
func Validate(field domain.Field, raw string) Result {
	if !field.Valid() {
		return reject(ReasonUnknownField)
	}
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return reject(ReasonEmptyAnswer)
	}

	switch {
	case field == domain.FieldSalaryMin:
		return validateSalary(text)
	case IsEnum(field):
		return validateEnum(field, text)
	}
	return Result{Accepted: true, Normalized: text}
}

func validateEnum(field domain.Field, text string) Result {
	phrase := " " + normalizePhrase(text) + " "
	if strings.TrimSpace(phrase) == "" {
		return reject(ReasonEmptyAnswer)
	}

	matched := ""
	for canonical, spellings := range Synonyms[field] {
		for _, s := range append([]string{canonical}, spellings...) {
			if !strings.Contains(phrase, " "+normalizePhrase(s)+" ") {
				continue
			}
			if matched != "" && matched != canonical {
				// the answer names two different options
				return reject(ReasonUnrecognizedValue)
			}
			matched = canonical
		}
	}
	if matched == "" {
		return reject(ReasonUnrecognizedValue)
	}
	return Result{Accepted: true, Normalized: matched}
}

// normalizePhrase lowercases s and turns every run of non-alphanumerics
// into a single space.
func normalizePhrase(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

var salaryNumber = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(?:\s*(k)\b)?`)

func validateSalary(text string) Result {
	m := salaryNumber.FindStringSubmatch(text)
	if m == nil {
		return reject(ReasonUnparsableNumber)
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return reject(ReasonUnparsableNumber)
	}
	if m[2] != "" {
		amount *= 1000
	}
	if amount <= 0 {
		return reject(ReasonUnparsableNumber)
	}
	s := domain.Salary{Amount: amount, Currency: detectCurrency(text)}
	return Result{Accepted: true, Normalized: s.String(), Amount: s.Amount, Currency: s.Currency}
}

func detectCurrency(text string) string {
	lower := strings.ToLower(text)
	words := " " + normalizePhrase(text) + " "
	switch {
	case strings.Contains(lower, "€") || strings.Contains(words, " eur ") || strings.Contains(words, " euro"):
		return "EUR"
	case strings.Contains(lower, "£") || strings.Contains(words, " gbp ") || strings.Contains(words, " pound"):
		return "GBP"
	}
	return domain.DefaultCurrency
}
