package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"speakd/log"
)

// decodeReplaceMap extracts postprocess.replace_map from the raw config
// file, preserving the declared entry order. Replacement rules cascade, so
// the order they were written in is part of their meaning.
func decodeReplaceMap(raw []byte) ([]Rule, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	ppRaw, ok := top["postprocess"]
	if !ok {
		return nil, nil
	}

	var pp map[string]json.RawMessage
	if err := json.Unmarshal(ppRaw, &pp); err != nil {
		return nil, err
	}
	rmRaw, ok := pp["replace_map"]
	if !ok {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(rmRaw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("replace_map must be an object")
	}

	var rules []Rule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return nil, err
		}
		var val string
		if err := json.Unmarshal(rawVal, &val); err != nil {
			log.Warnf("replace_map entry %q has a non-string value, skipping", key)
			continue
		}
		rules = append(rules, Rule{From: key, To: val})
	}
	return rules, nil
}
