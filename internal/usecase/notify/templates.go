package notify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"farm-notify/internal/domain/entity"
)

//go:embed templates.yaml
var defaultTemplates []byte

type templateFile struct {
	Templates map[entity.Category]struct {
		Title   string `yaml:"title"`
		Subject string `yaml:"subject"`
		Body    string `yaml:"body"`
	} `yaml:"templates"`
}

type categoryTemplate struct {
	title, subject, body *template.Template
}

// Renderer turns a NotificationEvent into a DeliveryPayload using one
// template set per category.
type Renderer struct {
	templates map[entity.Category]categoryTemplate
}

// NewRenderer parses the built-in templates.
func NewRenderer() *Renderer {
	r, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("built-in templates: %v", err))
	}
	return r
}

// LoadTemplates reads a template file from path. The path comes from
// operator configuration.
func LoadTemplates(path string) (*Renderer, error) {
	// #nosec G304 -- path is provided by trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses YAML template definitions. Every category must
// have a body.
func ParseTemplates(data []byte) (*Renderer, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Renderer{templates: make(map[entity.Category]categoryTemplate, len(f.Templates))}
	for category, spec := range f.Templates {
		if !category.Valid() {
			return nil, fmt.Errorf("templates: unknown category %q", category)
		}
		if strings.TrimSpace(spec.Body) == "" {
			return nil, fmt.Errorf("templates: %s has no body", category)
		}
		var ct categoryTemplate
		var err error
		if ct.title, err = parse(category, "title", spec.Title); err != nil {
			return nil, err
		}
		if ct.subject, err = parse(category, "subject", spec.Subject); err != nil {
			return nil, err
		}
		if ct.body, err = parse(category, "body", spec.Body); err != nil {
			return nil, err
		}
		r.templates[category] = ct
	}
	for _, c := range entity.Categories {
		if _, ok := r.templates[c]; !ok {
			return nil, fmt.Errorf("templates: missing category %s", c)
		}
	}
	return r, nil
}

func parse(category entity.Category, field, text string) (*template.Template, error) {
	t, err := template.New(string(category) + "." + field).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("templates: %s.%s: %w", category, field, err)
	}
	return t, nil
}

// Render builds the payload for event addressed to recipient.
func (r *Renderer) Render(event *entity.NotificationEvent, recipient entity.Recipient) (entity.DeliveryPayload, error) {
	ct, ok := r.templates[event.Category]
	if !ok {
		return entity.DeliveryPayload{}, &entity.ValidationError{Field: "category", Message: "no template for " + string(event.Category)}
	}

	data := struct {
		Event *entity.NotificationEvent
		P     map[string]string
	}{Event: event, P: event.Payload}

	exec := func(t *template.Template) (string, error) {
		var b strings.Builder
		if err := t.Execute(&b, data); err != nil {
			return "", fmt.Errorf("render %s: %w", t.Name(), err)
		}
		return strings.TrimSpace(b.String()), nil
	}

	title, err := exec(ct.title)
	if err != nil {
		return entity.DeliveryPayload{}, err
	}
	subject, err := exec(ct.subject)
	if err != nil {
		return entity.DeliveryPayload{}, err
	}
	body, err := exec(ct.body)
	if err != nil {
		return entity.DeliveryPayload{}, err
	}

	// explicit payload overrides win over the template
	if v := event.Payload["title"]; v != "" {
		title = v
	}
	if v := event.Payload["body"]; v != "" {
		body = v
	}

	return entity.DeliveryPayload{
		EventID:   event.ID,
		Category:  event.Category,
		Priority:  event.Priority,
		Title:     title,
		Subject:   subject,
		Body:      body,
		Recipient: recipient,
	}, nil
}
