package signatures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netsentry/netsentry/common/models"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid signature rule")

// fileRule is the on-disk shape of a rule. Active defaults to true.
type fileRule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Desc        string   `json:"desc" yaml:"desc"`
	Type        string   `json:"type" yaml:"type"`
	Patterns    []string `json:"patterns" yaml:"patterns"`
	Severity    string   `json:"severity" yaml:"severity"`
	Active      *bool    `json:"active" yaml:"active"`
}

type ruleFile struct {
	Signatures []fileRule `json:"signatures" yaml:"signatures"`
}

// LoadFile reads a JSON or YAML rule file. The document is either a list of
// rules or an object with a "signatures" list.
func LoadFile(path string) ([]models.Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// ParseJSON decodes rules from JSON.
func ParseJSON(data []byte) ([]models.Signature, error) {
	var rules []fileRule
	if err := json.Unmarshal(data, &rules); err != nil {
		var doc ruleFile
		if err2 := json.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("decode json rules: %w", err)
		}
		rules = doc.Signatures
	}
	return convert(rules)
}

// ParseYAML decodes rules from YAML.
func ParseYAML(data []byte) ([]models.Signature, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode yaml rules: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var rules []fileRule
	if node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Content[0].Decode(&rules); err != nil {
			return nil, fmt.Errorf("decode yaml rules: %w", err)
		}
	} else {
		var doc ruleFile
		if err := node.Content[0].Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml rules: %w", err)
		}
		rules = doc.Signatures
	}
	return convert(rules)
}

func convert(rules []fileRule) ([]models.Signature, error) {
	out := make([]models.Signature, 0, len(rules))
	for i, r := range rules {
		sig := models.Signature{
			RuleID:      r.ID,
			Name:        strings.TrimSpace(r.Name),
			Description: r.Description,
			Type:        strings.ToLower(r.Type),
			Patterns:    r.Patterns,
			Severity:    r.Severity,
			Active:      r.Active == nil || *r.Active,
		}
		if sig.Description == "" {
			sig.Description = r.Desc
		}
		if err := Validate(sig); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, sig)
	}
	return out, nil
}

// Validate checks that a rule can be matched.
func Validate(sig models.Signature) error {
	if sig.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	switch sig.Type {
	case models.SignatureProcess, models.SignatureDomain, models.SignatureHybrid:
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidRule, sig.Name, sig.Type)
	}
	if len(sig.Patterns) == 0 {
		return fmt.Errorf("%w: %s has no patterns", ErrInvalidRule, sig.Name)
	}
	return nil
}
