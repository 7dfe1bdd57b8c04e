package search

import (
	"sort"
	"strings"
	"time"

	"jobboard-agent/internal/domain"
)

const (
	BadgeRemote      = "remote"
	BadgeHybrid      = "hybrid"
	BadgeVisaSponsor = "visa-sponsor"
	BadgeRecent      = "recent"

	recentWindow = 7 * 24 * time.Hour
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "for": true,
	"in": true, "to": true, "with": true, "role": true, "job": true, "jobs": true, "position": true,
}

// queryVariants returns the full role phrase followed by its meaningful
// tokens.
func queryVariants(role string) []string {
	role = strings.ToLower(strings.Join(strings.Fields(role), " "))
	if role == "" {
		return nil
	}
	out := []string{role}
	for _, tok := range strings.FieldsFunc(role, func(r rune) bool {
		return r == ' ' || r == '/' || r == ',' || r == '-'
	}) {
		if stopWords[tok] || len(tok) < 2 || tok == role {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// computeRelevance scores role matches in title, description and company,
// capped at 10.
func computeRelevance(j domain.JobResult, variants []string) float64 {
	title := strings.ToLower(j.Title)
	desc := strings.ToLower(j.Description)
	company := strings.ToLower(j.Company)

	score := 0.0
	for i, v := range variants {
		if title != "" && strings.Contains(title, v) {
			if i == 0 {
				score += 5
			} else {
				score += 3
			}
		}
		if desc != "" && strings.Contains(desc, v) {
			score += 1
		}
		if company != "" && strings.Contains(company, v) {
			score += 1
		}
		if score >= 10 {
			return 10
		}
	}
	return score
}

func computeLocationMatch(j domain.JobResult, in domain.Intent) float64 {
	score := 0.0
	loc := strings.ToLower(j.Location)
	if want := strings.ToLower(strings.TrimSpace(in.Location)); want != "" && loc != "" {
		for _, part := range strings.FieldsFunc(want, func(r rune) bool { return r == ',' || r == '/' || r == ';' }) {
			for _, p := range strings.Split(part, " or ") {
				p = strings.TrimSpace(p)
				if p != "" && strings.Contains(loc, p) {
					score += 2
				}
			}
		}
		if strings.Contains(want, "remote") && hasBadge(j, BadgeRemote) {
			score += 2
		}
	}
	switch in.RemotePreference {
	case domain.RemoteRemote:
		if hasBadge(j, BadgeRemote) {
			score += 2
		}
	case domain.RemoteHybrid:
		if hasBadge(j, BadgeHybrid) {
			score += 1
		}
	case domain.RemoteOnsite:
		if !hasBadge(j, BadgeRemote) {
			score += 1
		}
	}
	if in.WorkType != "" && j.JobType != "" {
		if res := strings.ToLower(j.JobType); strings.Contains(strings.ReplaceAll(res, " ", "-"), in.WorkType) {
			score += 1
		}
	}
	if in.Seniority != "" && strings.Contains(strings.ToLower(j.Title), in.Seniority) {
		score += 1
	}
	return score
}

// rank orders jobs by match score, then posting date (newest first, unknown
// last), then adapter priority, then merge order.
func rank(jobs []ranked, in domain.Intent) {
	variants := queryVariants(in.Role)
	for i := range jobs {
		jobs[i].score = computeRelevance(jobs[i].job, variants) + computeLocationMatch(jobs[i].job, in)
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		ja, jb := jobs[a], jobs[b]
		if ja.score != jb.score {
			return ja.score > jb.score
		}
		pa, pb := ja.job.PostedAt, jb.job.PostedAt
		switch {
		case pa != nil && pb != nil && !pa.Equal(*pb):
			return pa.After(*pb)
		case pa != nil && pb == nil:
			return true
		case pa == nil && pb != nil:
			return false
		}
		if ja.priority != jb.priority {
			return ja.priority < jb.priority
		}
		return ja.order < jb.order
	})
}

func hasBadge(j domain.JobResult, badge string) bool {
	for _, b := range j.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// annotateBadges derives badges from the posting text, keeping any the
// adapter already set.
func annotateBadges(j domain.JobResult, now time.Time) []string {
	text := strings.ToLower(j.Title + " " + j.Location + " " + j.Description + " " + j.JobType)
	out := make([]string, 0, len(j.Badges)+2)
	add := func(b string) {
		for _, have := range out {
			if have == b {
				return
			}
		}
		out = append(out, b)
	}
	for _, b := range j.Badges {
		add(b)
	}
	switch {
	case strings.Contains(text, "hybrid"):
		add(BadgeHybrid)
	case strings.Contains(text, "remote") || strings.Contains(text, "work from home") || strings.Contains(text, "telework"):
		add(BadgeRemote)
	}
	if strings.Contains(text, "visa sponsor") || strings.Contains(text, "sponsorship available") || strings.Contains(text, "h1b") || strings.Contains(text, "h-1b") {
		add(BadgeVisaSponsor)
	}
	if j.PostedAt != nil && !j.PostedAt.IsZero() && now.Sub(*j.PostedAt) <= recentWindow {
		add(BadgeRecent)
	}
	return out
}
