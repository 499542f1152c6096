package store

import (
	"encoding/json"
	"fmt"

	"github.com/hannahlabs/leadflow/internal/models"
)

// leadToDoc converts a lead to its JSON document form. The id is carried in
// the surrounding row, not the document.
func leadToDoc(lead models.Lead) (map[string]any, error) {
	lead.ID = ""
	raw, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("marshal lead document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal lead document: %w", err)
	}
	return doc, nil
}

// leadFromDoc materializes a lead from its JSON document, restoring the id.
// Document fields outside the Lead struct (free-form userData values such as
// beds or notes) survive in the stored document but are not projected here.
func leadFromDoc(id string, doc map[string]any) (*models.Lead, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal lead document: %w", err)
	}
	var lead models.Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return nil, fmt.Errorf("unmarshal lead document: %w", err)
	}
	lead.ID = id
	return &lead, nil
}

// mergeDoc applies patch onto a JSON document string and returns the new
// document. An empty source document is treated as an empty object.
func mergeDoc(data string, patch map[string]any) (string, error) {
	doc := make(map[string]any)
	if data != "" {
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return "", fmt.Errorf("unmarshal stored document: %w", err)
		}
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal merged document: %w", err)
	}
	return string(merged), nil
}

// decodeDoc unmarshals a stored JSON document into out, restoring the row id
// afterwards via the caller.
func decodeDoc(data string, out any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("unmarshal stored document: %w", err)
	}
	return nil
}

// encodeDoc marshals a record to its stored JSON document form.
func encodeDoc(in any) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(raw), nil
}
