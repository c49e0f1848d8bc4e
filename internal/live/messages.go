package live

import "github.com/Zachkp/skycode/internal/page"

const (
	TypeMount          = "mount"
	TypeScroll         = "scroll"
	TypeNavigate       = "navigate"
	TypeToggleMenu     = "toggle_menu"
	TypeState          = "state"
	TypeScrollIntoView = "scroll_into_view"
	TypeError          = "error"
)

// inbound is any message sent by the browser.
type inbound struct {
	Type     string   `json:"type"`
	Elements []string `json:"elements,omitempty"`
	Offset   *float64 `json:"offset,omitempty"`
	Section  string   `json:"section,omitempty"`
}

type StateView struct {
	ActiveSection page.Section `json:"active_section"`
	ScrollOffset  float64      `json:"scroll_offset"`
	MenuOpen      bool         `json:"menu_open"`
}

type Outbound struct {
	Type    string       `json:"type"`
	State   *StateView   `json:"state,omitempty"`
	Section page.Section `json:"section,omitempty"`
	Smooth  bool         `json:"smooth,omitempty"`
	Message string       `json:"message,omitempty"`
}

// The decorative field never changes after mount, so it is not resent.
func stateMessage(st page.State) Outbound {
	return Outbound{
		Type: TypeState,
		State: &StateView{
			ActiveSection: st.ActiveSection,
			ScrollOffset:  st.ScrollOffset,
			MenuOpen:      st.MenuOpen,
		},
	}
}
