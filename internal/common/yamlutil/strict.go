// Package yamlutil wraps YAML decoding with strict field checking.
package yamlutil

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalStrict decodes YAML rejecting unknown fields, so configuration
// typos fail loudly instead of being silently ignored.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(v); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "field") && strings.Contains(msg, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}
