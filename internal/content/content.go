// Package content describes the portfolio copy rendered on the page: owner
// details, skills, projects and contact information. The built-in copy is
// embedded; a YAML file of the same shape can replace it.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"math/rand/v2"
	"os"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"github.com/Zachkp/skycode/internal/page"
)

//go:embed default.yaml
var defaultYAML []byte

const maxBarDelay = 0.5

type Portfolio struct {
	Owner    Owner        `yaml:"owner"`
	Hero     Hero         `yaml:"hero"`
	About    About        `yaml:"about"`
	Skills   []SkillGroup `yaml:"skills"`
	Projects []Project    `yaml:"projects"`
	Contact  Contact      `yaml:"contact"`
}

type Owner struct {
	Name       string `yaml:"name"`
	Profession string `yaml:"profession"`
	Experience string `yaml:"experience"`
	Location   string `yaml:"location"`
	Email      string `yaml:"email"`
}

type Hero struct {
	DayWord   string `yaml:"day_word"`
	NightWord string `yaml:"night_word"`
	Tagline   string `yaml:"tagline"`
}

type About struct {
	Bio string `yaml:"bio"` // markdown
}

type SkillGroup struct {
	Name   string  `yaml:"name"`
	Icon   string  `yaml:"icon"`
	Color  string  `yaml:"color"`
	Skills []Skill `yaml:"skills"`
}

type Skill struct {
	Name  string `yaml:"name"`
	Level int    `yaml:"level"` // percent
}

// SkillBar is a skill with the animation delay its progress bar starts with.
type SkillBar struct {
	Skill
	Delay float64 // seconds
}

type Project struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Gradient    string   `yaml:"gradient"`
}

type Contact struct {
	Heading  string `yaml:"heading"`
	Pitch    string `yaml:"pitch"` // markdown
	Location string `yaml:"location"`
	Links    []Link `yaml:"links"`
}

type Link struct {
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

func Default() (*Portfolio, error) {
	p, err := Parse(defaultYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded content: %w", err)
	}
	return p, nil
}

// Load reads path, or the embedded default when path is empty.
func Load(path string) (*Portfolio, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content %s: %w", path, err)
	}
	p, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", path, err)
	}
	return p, nil
}

func Parse(b []byte) (*Portfolio, error) {
	var p Portfolio
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

var validIcons = map[string]bool{"plane": true, "code": true}

var validLinks = map[string]bool{"github": true, "linkedin": true, "mail": true}

func (p *Portfolio) Validate() error {
	var errs []error
	if p.Owner.Name == "" {
		errs = append(errs, errors.New("owner.name is required"))
	}
	for i, g := range p.Skills {
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("skills[%d].name is required", i))
		}
		if g.Icon != "" && !validIcons[g.Icon] {
			errs = append(errs, fmt.Errorf("skills[%d].icon %q: must be plane or code", i, g.Icon))
		}
		for j, s := range g.Skills {
			if s.Level < 0 || s.Level > 100 {
				errs = append(errs, fmt.Errorf("skills[%d].skills[%d] %q: level %d outside 0..100", i, j, s.Name, s.Level))
			}
		}
	}
	for i, pr := range p.Projects {
		if pr.Title == "" {
			errs = append(errs, fmt.Errorf("projects[%d].title is required", i))
		}
	}
	for i, l := range p.Contact.Links {
		if !validLinks[l.Kind] {
			errs = append(errs, fmt.Errorf("contact.links[%d].kind %q: must be github, linkedin or mail", i, l.Kind))
		}
	}
	return errors.Join(errs...)
}

// Sections lists the sections the page renders for this content. Skills and
// projects are left out when there is nothing to show.
func (p *Portfolio) Sections() []page.Section {
	out := make([]page.Section, 0, 5)
	for _, s := range page.Sections() {
		switch s {
		case page.SectionSkills:
			if len(p.Skills) == 0 {
				continue
			}
		case page.SectionProjects:
			if len(p.Projects) == 0 {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Bars pairs every skill with a bar delay drawn from [0, 0.5) seconds.
func (g SkillGroup) Bars(rng *rand.Rand) []SkillBar {
	draw := rand.Float64
	if rng != nil {
		draw = rng.Float64
	}
	bars := make([]SkillBar, len(g.Skills))
	for i, s := range g.Skills {
		bars[i] = SkillBar{Skill: s, Delay: draw() * maxBarDelay}
	}
	return bars
}

// Markdown renders src to HTML. Raw HTML in src is not passed through.
func Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
