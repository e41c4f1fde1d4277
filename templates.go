package flairbot

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/valyala/fasttemplate"
)

// The placeholders a message template may reference. Anything else is a
// configuration error, caught at load time rather than at send time.
var templateFields = []string{"id", "username", "reminder_age_minutes", "removal_age_minutes"}

type Template struct {
	raw string
	t   *fasttemplate.Template
}

// ParseTemplate compiles a {placeholder} template and rejects unknown
// placeholder names.
func ParseTemplate(s string) (*Template, error) {
	t, err := fasttemplate.NewTemplate(s, "{", "}")
	if err != nil {
		return nil, err
	}

	_, err = t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		if !slices.Contains(templateFields, tag) {
			return 0, fmt.Errorf("unknown placeholder %q", tag)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	return &Template{raw: s, t: t}, nil
}

func mustTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type TemplateValues struct {
	PostID             string
	Username           string
	ReminderAgeMinutes int
	RemovalAgeMinutes  int
}

func (t *Template) Render(v TemplateValues) string {
	return t.t.ExecuteString(map[string]any{
		"id":                   v.PostID,
		"username":             v.Username,
		"reminder_age_minutes": strconv.Itoa(v.ReminderAgeMinutes),
		"removal_age_minutes":  strconv.Itoa(v.RemovalAgeMinutes),
	})
}

type MessageTemplates struct {
	ReminderSubject *Template
	ReminderBody    *Template
	RemovalSubject  *Template
	RemovalBody     *Template
}

func DefaultTemplates() MessageTemplates {
	return MessageTemplates{
		ReminderSubject: mustTemplate("Your post needs a flair"),
		ReminderBody: mustTemplate("Hi /u/{username}! Your [post](https://redd.it/{id}) doesn't have a flair yet. " +
			"Please add one within the next {removal_age_minutes} minutes or it will be removed."),
		RemovalSubject: mustTemplate("Your post was removed"),
		RemovalBody: mustTemplate("Hi /u/{username}, your [post](https://redd.it/{id}) was removed because it still had " +
			"no flair after {removal_age_minutes} minutes. You're welcome to resubmit it with a flair."),
	}
}

// templatesFile is the optional TOML override file. Empty fields keep the
// built-in defaults; the special_case table enables the transitional notice.
type templatesFile struct {
	Templates struct {
		ReminderSubject string `toml:"reminder_subject"`
		ReminderBody    string `toml:"reminder_body"`
		RemovalSubject  string `toml:"removal_subject"`
		RemovalBody     string `toml:"removal_body"`
	} `toml:"templates"`
	SpecialCase *struct {
		FlairText   string `toml:"flair_text"`
		TitleMarker string `toml:"title_marker"`
		Reply       string `toml:"reply"`
	} `toml:"special_case"`
}

// LoadTemplatesFile reads the TOML file at path and returns the merged
// templates plus the special-case rule if one is configured.
func LoadTemplatesFile(path string) (MessageTemplates, *SpecialCase, error) {
	templates := DefaultTemplates()

	var file templatesFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return templates, nil, err
	}

	overrides := []struct {
		raw  string
		dest **Template
	}{
		{file.Templates.ReminderSubject, &templates.ReminderSubject},
		{file.Templates.ReminderBody, &templates.ReminderBody},
		{file.Templates.RemovalSubject, &templates.RemovalSubject},
		{file.Templates.RemovalBody, &templates.RemovalBody},
	}
	for _, o := range overrides {
		if o.raw == "" {
			continue
		}
		t, err := ParseTemplate(o.raw)
		if err != nil {
			return templates, nil, fmt.Errorf("invalid template %q: %w", o.raw, err)
		}
		*o.dest = t
	}

	var sc *SpecialCase
	if file.SpecialCase != nil {
		if file.SpecialCase.FlairText == "" || file.SpecialCase.Reply == "" {
			return templates, nil, fmt.Errorf("special_case requires flair_text and reply")
		}
		sc = &SpecialCase{
			FlairText:   file.SpecialCase.FlairText,
			TitleMarker: file.SpecialCase.TitleMarker,
			Reply:       file.SpecialCase.Reply,
		}
	}

	return templates, sc, nil
}
