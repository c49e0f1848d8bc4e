package page

import (
	"errors"
	"fmt"
	"strings"
)

// Section identifies one navigable region of the page.
type Section string

const (
	SectionHome     Section = "home"
	SectionAbout    Section = "about"
	SectionSkills   Section = "skills"
	SectionProjects Section = "projects"
	SectionContact  Section = "contact"
)

var ErrUnknownSection = errors.New("unknown section")

var sections = []Section{
	SectionHome,
	SectionAbout,
	SectionSkills,
	SectionProjects,
	SectionContact,
}

// Sections returns every section in navigation order.
func Sections() []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

func ParseSection(s string) (Section, error) {
	switch Section(strings.ToLower(strings.TrimSpace(s))) {
	case SectionHome:
		return SectionHome, nil
	case SectionAbout:
		return SectionAbout, nil
	case SectionSkills:
		return SectionSkills, nil
	case SectionProjects:
		return SectionProjects, nil
	case SectionContact:
		return SectionContact, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
}

func (s Section) String() string {
	return string(s)
}

// Title is the capitalized label shown in navigation.
func (s Section) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
