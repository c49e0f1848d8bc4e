package main

import (
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/Zachkp/skycode/internal/content"
	"github.com/Zachkp/skycode/internal/page"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"tokenStyle": tokenStyle,
		"barStyle":   barStyle,
		"even":       func(i int) bool { return i%2 == 0 },
		"sectionIDs": sectionIDs,
	}
}

func tokenStyle(tok page.DecorativeToken, index int, scroll float64) template.CSS {
	return template.CSS(fmt.Sprintf(
		"width:%.2fpx;height:%.2fpx;top:%.2f%%;left:%.2f%%;animation:pulse %.2fs infinite %.2fs ease-in-out;transform:translateY(%.2fpx)",
		tok.Size, tok.Size, tok.TopPercent, tok.LeftPercent,
		tok.AnimationDuration, tok.AnimationDelay,
		page.ParallaxOffset(scroll, index),
	))
}

func barStyle(bar content.SkillBar) template.CSS {
	return template.CSS(fmt.Sprintf("width:%d%%;animation-delay:%.2fs", bar.Level, bar.Delay))
}

func sectionIDs(sections []page.Section) string {
	ids := make([]string, len(sections))
	for i, s := range sections {
		ids[i] = s.String()
	}
	return strings.Join(ids, " ")
}

// fragmentRenderer stands in for the browser while a page is driven by HTMX
// requests. It knows which sections the server rendered and holds scroll
// requests until the handler turns them into an HX-Trigger header.
type fragmentRenderer struct {
	elements map[page.Section]bool

	mu      sync.Mutex
	pending *page.Section
}

func newFragmentRenderer(rendered []page.Section) *fragmentRenderer {
	elements := make(map[page.Section]bool, len(rendered))
	for _, s := range rendered {
		elements[s] = true
	}
	return &fragmentRenderer{elements: elements}
}

func (r *fragmentRenderer) HasElement(section page.Section) bool {
	return r.elements[section]
}

func (r *fragmentRenderer) ScrollIntoView(section page.Section, _ bool) {
	r.mu.Lock()
	r.pending = &section
	r.mu.Unlock()
}

// take returns and clears the latest scroll request.
func (r *fragmentRenderer) take() (page.Section, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return "", false
	}
	s := *r.pending
	r.pending = nil
	return s, true
}
