package catalog

import "strings"

type Category string

const CategoryWork Category = "WORK"

var categoryLabels = map[Category]string{
	CategoryWork: "Work Profiles",
}

func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory normalizes user input. Empty input selects WORK; anything
// else is upper-cased and returned as-is, so unknown categories resolve to an
// empty style set downstream.
func ParseCategory(raw string) Category {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return CategoryWork
	}
	return Category(raw)
}

func Categories() []Category {
	return []Category{CategoryWork}
}

// Icon identifies the glyph a front-end renders next to a style.
type Icon string

const (
	IconPlane       Icon = "plane"
	IconAnchor      Icon = "anchor"
	IconShield      Icon = "shield"
	IconStethoscope Icon = "stethoscope"
	IconMedal       Icon = "medal"
	IconBook        Icon = "book"
	IconBriefcase   Icon = "briefcase"
)

func (i Icon) Valid() bool {
	switch i {
	case IconPlane, IconAnchor, IconShield, IconStethoscope, IconMedal, IconBook, IconBriefcase:
		return true
	}
	return false
}

type StyleProfile struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Icon        Icon
}

var styles = []StyleProfile{
	{ID: "pilot", Name: "Airline Pilot", Description: "Cockpit environment", Category: CategoryWork, Icon: IconPlane},
	{ID: "ship_captain", Name: "Ship Captain", Description: "Ship bridge & ocean", Category: CategoryWork, Icon: IconAnchor},
	{ID: "army_chief", Name: "Army Chief", Description: "Command HQ", Category: CategoryWork, Icon: IconShield},
	{ID: "doctor", Name: "Doctor", Description: "Hospital environment", Category: CategoryWork, Icon: IconStethoscope},
	{ID: "athlete", Name: "Pro Athlete", Description: "Stadium lights", Category: CategoryWork, Icon: IconMedal},
	{ID: "teacher", Name: "Teacher", Description: "Classroom setting", Category: CategoryWork, Icon: IconBook},
	{ID: "businessman", Name: "Executive", Description: "Corporate office", Category: CategoryWork, Icon: IconBriefcase},
}

var categoryStyles = map[Category][]string{
	CategoryWork: {"pilot", "ship_captain", "army_chief", "doctor", "athlete", "teacher", "businessman"},
}

func Styles() []StyleProfile {
	out := make([]StyleProfile, len(styles))
	copy(out, styles)
	return out
}

func StylesIn(category Category) []StyleProfile {
	ids := categoryStyles[category]
	out := make([]StyleProfile, 0, len(ids))
	for _, id := range ids {
		if s, ok := Lookup(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func Lookup(id string) (StyleProfile, bool) {
	for _, s := range styles {
		if s.ID == id {
			return s, true
		}
	}
	return StyleProfile{}, false
}

// StyleIDs returns the style ids one batch of the given category targets.
func StyleIDs(category Category) []string {
	return append([]string(nil), categoryStyles[category]...)
}

// Name returns the display name for id, or id itself when unknown.
func Name(id string) string {
	if s, ok := Lookup(id); ok {
		return s.Name
	}
	return id
}
