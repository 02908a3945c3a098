// Package prompt renders the outbound messages of a review run.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"treatment-review/internal/common/validation"
	"treatment-review/internal/conversation"
)

const systemRole = "You are an expert medical assistant. You give concise, precise answers to medical questions. Answers must be in valid JSON format."

// section is one titled block of a message.
type section struct {
	title string
	body  string
}

// SystemMessage is the fixed first entry of every transcript.
func SystemMessage() conversation.Message {
	return conversation.Message{Role: conversation.RoleSystem, Content: systemRole}
}

// FormatInstructions describes a schema so the model can produce a matching
// JSON object. The output depends only on the schema.
func FormatInstructions(name string, schema validation.JSONSchema) string {
	return render(formatSections(name, schema))
}

func formatSections(name string, schema validation.JSONSchema) []section {
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// JSONSchema contains only strings, numbers, slices and maps.
		raw = []byte("{}")
	}
	return []section{
		{title: "OUTPUT_SCHEMA", body: fmt.Sprintf("Respond with a single JSON object named %s conforming to this JSON schema:\n%s", name, raw)},
		{title: "FIELDS", body: formatFields(schema.Fields())},
	}
}

func formatFields(fields []validation.FieldInfo) string {
	var buf strings.Builder
	for _, f := range fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		if f.Description != "" {
			fmt.Fprintf(&buf, "- %s (%s, %s): %s\n", f.Path, f.Type, req, f.Description)
		} else {
			fmt.Fprintf(&buf, "- %s (%s, %s)\n", f.Path, f.Type, req)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func render(sections []section) string {
	var buf bytes.Buffer
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		buf.WriteString("[")
		buf.WriteString(s.title)
		buf.WriteString("]\n")
		buf.WriteString(s.body)
		if !strings.HasSuffix(s.body, "\n") {
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String()) + "\n"
}

func user(name string, schema validation.JSONSchema, task, input string, rules []string) conversation.Message {
	sections := formatSections(name, schema)
	sections = append([]section{{title: "TASK", body: task}, {title: "INPUT", body: input}}, sections...)
	sections = append(sections, section{title: "RULES", body: formatList(rules)})
	return conversation.Message{Role: conversation.RoleUser, Content: render(sections)}
}
