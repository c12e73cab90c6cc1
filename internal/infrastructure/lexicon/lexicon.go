// Package lexicon loads the colloquial-to-legal vocabulary tables from YAML.
package lexicon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

// Tables replaces the built-in term and pattern tables. A nil slice keeps the built-in table.
type Tables struct {
	Terms    []domain.TermMapping
	Patterns []domain.QueryPattern
}

type fileFormat struct {
	Terms []struct {
		Phrase     string   `yaml:"phrase"`
		LegalTerms []string `yaml:"legal_terms"`
	} `yaml:"terms"`
	Patterns []struct {
		Trigger string `yaml:"trigger"`
		Query   string `yaml:"query"`
	} `yaml:"patterns"`
}

// Load reads path. An empty path returns empty Tables.
func Load(path string) (Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Tables{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	tables, err := Parse(raw)
	if err != nil {
		return Tables{}, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return tables, nil
}

// Parse decodes and validates a lexicon document. Unknown keys are rejected.
func Parse(raw []byte) (Tables, error) {
	var doc fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Tables{}, domain.WrapError(domain.ErrInvalidInput, "decode lexicon", err)
	}

	var tables Tables
	var problems []error
	for i, t := range doc.Terms {
		phrase := strings.TrimSpace(t.Phrase)
		terms := make([]string, 0, len(t.LegalTerms))
		for _, lt := range t.LegalTerms {
			if lt = strings.TrimSpace(lt); lt != "" {
				terms = append(terms, lt)
			}
		}
		if phrase == "" || len(terms) == 0 {
			problems = append(problems, fmt.Errorf("terms[%d]: phrase and legal_terms are required", i))
			continue
		}
		tables.Terms = append(tables.Terms, domain.TermMapping{Phrase: phrase, LegalTerms: terms})
	}
	for i, p := range doc.Patterns {
		trigger := strings.TrimSpace(p.Trigger)
		query := strings.TrimSpace(p.Query)
		if trigger == "" || query == "" {
			problems = append(problems, fmt.Errorf("patterns[%d]: trigger and query are required", i))
			continue
		}
		tables.Patterns = append(tables.Patterns, domain.QueryPattern{Trigger: trigger, Query: query})
	}
	if len(problems) > 0 {
		return Tables{}, domain.WrapError(domain.ErrInvalidInput, "validate lexicon", errors.Join(problems...))
	}
	return tables, nil
}
