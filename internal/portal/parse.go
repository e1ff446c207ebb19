package portal

import (
	"encoding/json"
	"fmt"

	"dsgvo-downloader/internal/models"
)

var (
	summaryFields = []string{"incidentID", "orgPublishDate", "modifiedDate", "published", "country", "incidentText"}
	detailFields  = []string{"publishDate", "affectedObj", "affectedType", "description_de", "tags", "href", "reference"}
)

// ParseIncidentList decodes the list payload: a JSON array of incident summaries.
func ParseIncidentList(data []byte) ([]models.IncidentSummary, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: failed to parse incident response: %v", models.ErrParse, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: incident response is not a JSON array", models.ErrParse)
	}

	summaries := make([]models.IncidentSummary, 0, len(items))
	for i, item := range items {
		if _, err := requireFields(item, summaryFields); err != nil {
			return nil, fmt.Errorf("%w: incident list entry %d: %v", models.ErrParse, i, err)
		}
		var summary models.IncidentSummary
		if err := json.Unmarshal(item, &summary); err != nil {
			return nil, fmt.Errorf("%w: incident list entry %d: %v", models.ErrParse, i, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ParseIncidentDetail decodes the detail payload. The "reference" field carries a JSON
// document encoded as a string; an inline array or object is accepted as well.
func ParseIncidentDetail(data []byte) (*models.IncidentDetail, error) {
	fields, err := requireFields(data, detailFields)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse details: %v", models.ErrParse, err)
	}

	var detail models.IncidentDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("%w: failed to parse details: %v", models.ErrParse, err)
	}

	refs, err := decodeReferences(fields["reference"])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse references in details: %v", models.ErrParse, err)
	}
	detail.References = refs

	return &detail, nil
}

func decodeReferences(raw json.RawMessage) (json.RawMessage, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		// not a string: accept an inline document as is
		if len(raw) > 0 && (raw[0] == '[' || raw[0] == '{') {
			return raw, nil
		}
		return nil, fmt.Errorf("reference must be a string or a JSON document")
	}
	if !json.Valid([]byte(encoded)) {
		return nil, fmt.Errorf("reference is not valid JSON: %q", truncate(encoded, 64))
	}
	return json.RawMessage(encoded), nil
}

// requireFields checks that data is a JSON object holding every field with a non-null value.
func requireFields(data []byte, fields []string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	for _, f := range fields {
		v, ok := obj[f]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("missing field `%s`", f)
		}
	}
	return obj, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
