package content

import (
	"bytes"
	"encoding/json"
)

// APIResponse is the provider payload for one batch.
type APIResponse struct {
	Content json.RawMessage `json:"content"`
	Version json.RawMessage `json:"version"`
}

type Group struct {
	Teacher json.RawMessage `json:"teacher"`
	Videos  json.RawMessage `json:"videos"`
}

// Video keeps the provider's object verbatim in Raw alongside the fields the
// sync needs to read.
type Video struct {
	Title    *string
	VideoURL string
	LiveAt   json.RawMessage
	Raw      map[string]json.RawMessage
}

func (v *Video) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &v.Raw); err != nil {
		return err
	}
	if v.Raw == nil {
		v.Raw = map[string]json.RawMessage{}
	}

	if title, ok := stringField(v.Raw["title"]); ok {
		v.Title = &title
	}
	v.VideoURL, _ = stringField(v.Raw["video_url"])
	v.LiveAt = v.Raw["live_at"]
	return nil
}

// stringField mirrors loose provider typing: strings are used as is, numbers
// keep their literal text, anything else reads as empty.
func stringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// asArray decodes raw into a slice only when it is a JSON array; any other
// shape, including null, yields nil.
func asArray[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
