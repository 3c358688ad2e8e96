package disposal

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Role is what a detection means to the assessment engine
type Role int

const (
	RoleUnclassified Role = iota // Drawn, but takes no part in scoring
	RoleTrash
	RoleBin
	RolePerson
)

func (r Role) String() string {
	switch r {
	case RoleTrash:
		return "trash"
	case RoleBin:
		return "bin"
	case RolePerson:
		return "person"
	}
	return "unclassified"
}

// Vocabulary is the set of detector class names for each role.
// It is saved as JSON, alongside whatever model produced the detections.
type Vocabulary struct {
	Trash  []string `json:"trash"`
	Bin    []string `json:"bin"`
	Person []string `json:"person"`
}

// DefaultVocabulary returns the class names of the stock trash detection model
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Trash:  []string{"bottle", "cup", "can", "plastic bag", "paper", "banana", "box"},
		Bin:    []string{"waste container", "trash can", "recycling bin"},
		Person: []string{"person"},
	}
}

// Load a vocabulary from a JSON file
func LoadVocabulary(filename string) (*Vocabulary, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	v := &Vocabulary{}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("Error parsing vocabulary file %v: %w", filename, err)
	}
	return v, nil
}

// Classifier maps class names to roles.
// It is built once from a Vocabulary, so that we don't scatter case-insensitive
// string comparisons throughout the code.
type Classifier struct {
	roles map[string]Role
	vocab Vocabulary
}

// Create a classifier. Fails if a class name is listed under more than one role.
func NewClassifier(v *Vocabulary) (*Classifier, error) {
	c := &Classifier{
		roles: map[string]Role{},
		vocab: Vocabulary{
			Trash:  slices.Clone(v.Trash),
			Bin:    slices.Clone(v.Bin),
			Person: slices.Clone(v.Person),
		},
	}
	add := func(names []string, role Role) error {
		for _, name := range names {
			key := normalizeClass(name)
			if key == "" {
				continue
			}
			if existing, ok := c.roles[key]; ok && existing != role {
				return fmt.Errorf("Class '%v' is listed as both %v and %v", name, existing, role)
			}
			c.roles[key] = role
		}
		return nil
	}
	if err := add(v.Trash, RoleTrash); err != nil {
		return nil, err
	}
	if err := add(v.Bin, RoleBin); err != nil {
		return nil, err
	}
	if err := add(v.Person, RolePerson); err != nil {
		return nil, err
	}
	return c, nil
}

var defaultClassifier = mustClassifier(DefaultVocabulary())

// DefaultClassifier uses DefaultVocabulary
func DefaultClassifier() *Classifier {
	return defaultClassifier
}

func mustClassifier(v *Vocabulary) *Classifier {
	c, err := NewClassifier(v)
	if err != nil {
		panic(err)
	}
	return c
}

// Role returns the role of a detector class name (case-insensitive)
func (c *Classifier) Role(class string) Role {
	return c.roles[normalizeClass(class)]
}

// Vocabulary returns a copy of the vocabulary that the classifier was built from
func (c *Classifier) Vocabulary() *Vocabulary {
	return &Vocabulary{
		Trash:  slices.Clone(c.vocab.Trash),
		Bin:    slices.Clone(c.vocab.Bin),
		Person: slices.Clone(c.vocab.Person),
	}
}

func normalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}
