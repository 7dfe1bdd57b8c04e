package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field names one slot of an Intent.
type Field string

const (
	FieldRole             Field = "role"
	FieldLocation         Field = "location"
	FieldWorkType         Field = "work_type"
	FieldSeniority        Field = "seniority"
	FieldSalaryMin        Field = "salary_min"
	FieldRemotePreference Field = "remote_preference"
	FieldNotes            Field = "notes"
)

// Fields lists every Intent field in declaration order.
var Fields = []Field{
	FieldRole,
	FieldLocation,
	FieldWorkType,
	FieldSeniority,
	FieldSalaryMin,
	FieldRemotePreference,
	FieldNotes,
}

// FollowUpPriority is the order in which missing optional fields are asked.
var FollowUpPriority = []Field{
	FieldLocation,
	FieldWorkType,
	FieldSeniority,
	FieldSalaryMin,
}

func (f Field) Valid() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

const (
	WorkTypeFullTime = "full-time"
	WorkTypeContract = "contract"
	WorkTypePartTime = "part-time"
)

const (
	SeniorityJunior    = "junior"
	SeniorityMid       = "mid"
	SenioritySenior    = "senior"
	SeniorityLead      = "lead"
	SeniorityStaff     = "staff"
	SeniorityPrincipal = "principal"
)

const (
	RemoteRemote = "remote"
	RemoteHybrid = "hybrid"
	RemoteOnsite = "onsite"
)

const DefaultCurrency = "USD"

// Salary is a minimum salary expectation.
type Salary struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (s Salary) String() string {
	cur := s.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return strconv.FormatFloat(s.Amount, 'f', -1, 64) + " " + cur
}

// UnmarshalJSON accepts the object form as well as a bare number, which some
// callers send for salary_min.
func (s *Salary) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, "{") {
		type plain Salary
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return fmt.Errorf("domain: decode salary: %w", err)
		}
		*s = Salary(p)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("domain: decode salary: %w", err)
	}
	s.Amount = n
	s.Currency = DefaultCurrency
	return nil
}

// Intent is the structured description of what a candidate is looking for.
// Empty strings and a nil SalaryMin mean the field is absent.
type Intent struct {
	Role             string  `json:"role"`
	Location         string  `json:"location,omitempty"`
	WorkType         string  `json:"work_type,omitempty"`
	Seniority        string  `json:"seniority,omitempty"`
	SalaryMin        *Salary `json:"salary_min,omitempty"`
	RemotePreference string  `json:"remote_preference,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// Has reports whether the field carries a value.
func (i Intent) Has(f Field) bool {
	if f == FieldSalaryMin {
		return i.SalaryMin != nil && i.SalaryMin.Amount > 0
	}
	return strings.TrimSpace(i.Value(f)) != ""
}

// Value returns the string form of a field, or "" when absent.
func (i Intent) Value(f Field) string {
	switch f {
	case FieldRole:
		return i.Role
	case FieldLocation:
		return i.Location
	case FieldWorkType:
		return i.WorkType
	case FieldSeniority:
		return i.Seniority
	case FieldSalaryMin:
		if i.SalaryMin == nil {
			return ""
		}
		return i.SalaryMin.String()
	case FieldRemotePreference:
		return i.RemotePreference
	case FieldNotes:
		return i.Notes
	}
	return ""
}

// Set assigns a string value to a non-salary field. It reports false for
// salary_min and unknown fields.
func (i *Intent) Set(f Field, v string) bool {
	switch f {
	case FieldRole:
		i.Role = v
	case FieldLocation:
		i.Location = v
	case FieldWorkType:
		i.WorkType = v
	case FieldSeniority:
		i.Seniority = v
	case FieldRemotePreference:
		i.RemotePreference = v
	case FieldNotes:
		i.Notes = v
	default:
		return false
	}
	return true
}

// HasOptional reports whether any field other than role and notes is set.
func (i Intent) HasOptional() bool {
	for _, f := range []Field{FieldLocation, FieldWorkType, FieldSeniority, FieldSalaryMin, FieldRemotePreference} {
		if i.Has(f) {
			return true
		}
	}
	return false
}

// MissingFields returns the absent follow-up fields in priority order.
func (i Intent) MissingFields() []Field {
	out := make([]Field, 0, len(FollowUpPriority))
	for _, f := range FollowUpPriority {
		if !i.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (i Intent) Clone() Intent {
	out := i
	if i.SalaryMin != nil {
		s := *i.SalaryMin
		out.SalaryMin = &s
	}
	return out
}
