package intent

import (
	"regexp"
	"strings"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/validation"
)

var answerLine = regexp.MustCompile(`(?im)^\s*(role|location|work_type|seniority|salary_min|remote_preference|notes)\s*:\s*(.+?)\s*$`)

// fillFromAnswers copies folded "field: value" answers into fields the
// service left empty. Later answers win over earlier ones.
func fillFromAnswers(in *domain.Intent, text string) {
	answers := map[domain.Field]string{}
	for _, m := range answerLine.FindAllStringSubmatch(text, -1) {
		answers[domain.Field(strings.ToLower(m[1]))] = m[2]
	}
	for _, f := range domain.Fields {
		v, ok := answers[f]
		if !ok || in.Has(f) || cleanValue(v) == "" {
			continue
		}
		res := validation.Validate(f, v)
		if !res.Accepted {
			continue
		}
		if f == domain.FieldSalaryMin {
			in.SalaryMin = &domain.Salary{Amount: res.Amount, Currency: res.Currency}
			continue
		}
		in.Set(f, res.Normalized)
	}
}

var (
	remoteWords   = []string{"remote", "online", "virtual", "wfh", "work from home"}
	hybridWords   = []string{"hybrid"}
	onsiteWords   = []string{"onsite", "on site", "in person", "in office"}
	partTimeWords = []string{"few hours", "couple hours", "hours a week", "part time", "pt"}

	// Bare five-digit numbers are left alone: they are usually ZIP codes.
	salaryMention = regexp.MustCompile(`(?i)(?:\$|€|£|\b(?:usd|eur|gbp)\s*)\s*\d[\d,.]*\s*k?\b|\b\d{2,3}\s*k\b|\b\d{2,3}(?:,\d{3})+\b|\b[1-9]\d{5}\b`)
)

// fillFromHeuristics recovers obvious signals when the service returned an
// almost empty intent. Only empty slots are filled.
func fillFromHeuristics(in *domain.Intent, text string) {
	phrase := " " + strings.Join(strings.Fields(strings.ToLower(strings.NewReplacer("-", " ", ",", " ", ".", " ").Replace(text))), " ") + " "
	has := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(phrase, " "+w+" ") {
				return true
			}
		}
		return false
	}

	if in.RemotePreference == "" {
		switch {
		case has(remoteWords):
			in.RemotePreference = domain.RemoteRemote
		case has(hybridWords):
			in.RemotePreference = domain.RemoteHybrid
		case has(onsiteWords):
			in.RemotePreference = domain.RemoteOnsite
		}
	}
	if in.WorkType == "" && has(partTimeWords) {
		in.WorkType = domain.WorkTypePartTime
	}
	if in.SalaryMin == nil {
		if m := salaryMention.FindString(text); m != "" {
			if res := validation.Validate(domain.FieldSalaryMin, m); res.Accepted {
				in.SalaryMin = &domain.Salary{Amount: res.Amount, Currency: res.Currency}
			}
		}
	}
}
