package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hoohoot/michel/internal/bridge"
)

// webhookSchemaJSON is the shape Seerr is configured to deliver. The
// issue_id field is templated by Seerr as a string, so both string and
// integer are accepted on the wire.
const webhookSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["notification_type"],
	"properties": {
		"notification_type": {"type": "string", "minLength": 1},
		"subject": {"type": ["string", "null"]},
		"message": {"type": ["string", "null"]},
		"image": {"type": ["string", "null"]},
		"issue_id": {"type": ["string", "integer", "null"]},
		"reported_by": {"type": ["string", "null"]},
		"comment": {"type": ["string", "null"]},
		"commented_by": {"type": ["string", "null"]}
	}
}`

var webhookSchema = mustCompileWebhookSchema()

func mustCompileWebhookSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("webhook schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		panic(fmt.Sprintf("webhook schema: %v", err))
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		panic(fmt.Sprintf("webhook schema: %v", err))
	}
	return schema
}

type webhookPayload struct {
	NotificationType string    `json:"notification_type"`
	Subject          string    `json:"subject"`
	Message          string    `json:"message"`
	Image            string    `json:"image"`
	IssueID          flexInt64 `json:"issue_id"`
	ReportedBy       string    `json:"reported_by"`
	Comment          string    `json:"comment"`
	CommentedBy      string    `json:"commented_by"`
}

// flexInt64 decodes an id that arrives either as a JSON number or as a
// numeric string, and records whether a usable value was present at all.
type flexInt64 struct {
	Value int64
	Set   bool
}

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("issue_id %q is not numeric", raw)
		}
		f.Value = value
		f.Set = true
		return nil
	}
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	f.Value = value
	f.Set = true
	return nil
}

// parseWebhookBody validates and decodes one webhook delivery into a
// Notification. An issue-kind payload missing its issue id is downgraded to
// the broadcast kind rather than rejected.
func parseWebhookBody(body []byte) (bridge.Notification, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return bridge.Notification{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := webhookSchema.Validate(doc); err != nil {
		return bridge.Notification{}, fmt.Errorf("payload rejected by schema: %w", err)
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return bridge.Notification{}, err
	}

	kind := bridge.KindFromNotificationType(payload.NotificationType)
	if kind != bridge.KindOther && !payload.IssueID.Set {
		kind = bridge.KindOther
	}
	n := bridge.Notification{
		Kind:        kind,
		Subject:     payload.Subject,
		Message:     payload.Message,
		ReportedBy:  payload.ReportedBy,
		Comment:     payload.Comment,
		CommentedBy: payload.CommentedBy,
		ImageURL:    payload.Image,
	}
	if kind != bridge.KindOther {
		n.IssueID = payload.IssueID.Value
	}
	return n, nil
}
