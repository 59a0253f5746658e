package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rentalintake/models"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var validate = validator.New()

const templatesSchema = `{
	"type": "object",
	"properties": {
		"thankYou": {"type": "string"},
		"accepted": {"type": "string"},
		"rejected": {"type": "string"}
	},
	"additionalProperties": false
}`

var schemaLoader = gojsonschema.NewStringLoader(templatesSchema)

// ParseTemplates decodes a JSON template document. Keys that are missing or
// empty are reported by Validate, not here.
func ParseTemplates(raw []byte) (models.EmailTemplates, error) {
	var t models.EmailTemplates

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return t, models.Validation("templates must be a JSON object")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return t, models.Validation("invalid templates: " + strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(raw, &t); err != nil {
		return t, models.Validation("templates must be a JSON object")
	}
	return t, nil
}

// ValidateTemplates checks that all three templates are present.
func ValidateTemplates(t models.EmailTemplates) error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			names := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				names = append(names, fe.Field())
			}
			return models.Validation("missing templates: " + strings.Join(names, ", "))
		}
		return models.Validation(err.Error())
	}
	return nil
}

// TemplateStore owns the email templates and their backing file. Reads may
// run concurrently with an update; updates are serialized.
type TemplateStore struct {
	mu      sync.RWMutex
	path    string
	current models.EmailTemplates
}

func NewTemplateStore(path string) *TemplateStore {
	return &TemplateStore{path: path, current: models.DefaultEmailTemplates()}
}

// Load reads the template file. A missing file keeps the defaults. A file that
// cannot be parsed also keeps the defaults and the error is returned for logging.
func (s *TemplateStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(models.DefaultEmailTemplates())
		return nil
	}
	if err != nil {
		s.set(models.DefaultEmailTemplates())
		return fmt.Errorf("read templates: %w", err)
	}

	t, err := ParseTemplates(raw)
	if err != nil {
		s.set(models.DefaultEmailTemplates())
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.set(withDefaults(t))
	return nil
}

func withDefaults(t models.EmailTemplates) models.EmailTemplates {
	d := models.DefaultEmailTemplates()
	if t.ThankYou == "" {
		t.ThankYou = d.ThankYou
	}
	if t.Accepted == "" {
		t.Accepted = d.Accepted
	}
	if t.Rejected == "" {
		t.Rejected = d.Rejected
	}
	return t
}

func (s *TemplateStore) set(t models.EmailTemplates) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

// Get returns the current templates.
func (s *TemplateStore) Get() models.EmailTemplates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates t, writes it to the file and then makes it current.
// On error the previous templates stay in effect.
func (s *TemplateStore) Update(t models.EmailTemplates) error {
	if err := ValidateTemplates(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, t); err != nil {
		return models.Persistence("write templates", err)
	}
	s.current = t
	return nil
}

func writeFileAtomic(path string, t models.EmailTemplates) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".templates-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
