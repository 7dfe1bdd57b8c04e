package intent

import (
	"encoding/json"
	"strings"

	"jobboard-agent/internal/domain"
)

const schemaName = "intent_extraction"

var intentSchema = json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"role":{"type":["string","null"]},
		"location":{"type":["string","null"]},
		"work_type":{"type":["string","null"],"enum":["full-time","contract","part-time",null]},
		"seniority":{"type":["string","null"],"enum":["junior","mid","senior","lead","staff","principal",null]},
		"salary_min":{
			"type":["object","null"],
			"additionalProperties":false,
			"properties":{
				"amount":{"type":"number"},
				"currency":{"type":"string"}
			},
			"required":["amount","currency"]
		},
		"remote_preference":{"type":["string","null"],"enum":["remote","hybrid","onsite",null]},
		"notes":{"type":["string","null"]}
	},
	"required":["role","location","work_type","seniority","salary_min","remote_preference","notes"]
}`)

// Schema is the structured-output contract sent to the extraction service.
func Schema() domain.ResponseSchema {
	return domain.ResponseSchema{Name: schemaName, Schema: intentSchema}
}

func buildMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildInstructions()},
		{Role: "user", Content: text},
	}
}

func buildInstructions() string {
	return strings.Join([]string{
		"Role:",
		"You extract a job seeker's search intent from free text for a job board.",
		"",
		"Rules:",
		"1) Use only what the text states. Never guess or invent values.",
		"2) Use null for anything not stated.",
		"3) role is the job title or kind of work, without seniority words.",
		"4) work_type is one of full-time, contract, part-time.",
		"5) seniority is one of junior, mid, senior, lead, staff, principal.",
		"6) remote_preference is one of remote, hybrid, onsite.",
		"7) salary_min is the lowest acceptable yearly salary as a number plus an ISO currency code.",
		"8) Lines shaped like \"field: value\" are answers to earlier questions and are authoritative.",
		"",
		"Output Contract:",
		"Return one JSON object with keys role, location, work_type, seniority, salary_min, remote_preference, notes.",
	}, "\n")
}

// PromptTemplate is the copy-paste intake template offered to clients.
func PromptTemplate() string {
	return strings.Join([]string{
		"I'm looking for: <role>",
		"Location: <city, region, or remote>",
		"Work type: <full-time, part-time, or contract>",
		"Seniority: <junior, mid, senior, lead, staff, or principal>",
		"Minimum salary: <amount and currency>",
		"Notes: <anything else>",
	}, "\n")
}
