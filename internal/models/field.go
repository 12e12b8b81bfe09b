package models

// FieldKind classifies how a form field is filled.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindEmail    FieldKind = "email"
	FieldKindPassword FieldKind = "password"
	FieldKindSelect   FieldKind = "select"
	FieldKindCheckbox FieldKind = "checkbox"
	FieldKindRadio    FieldKind = "radio"
	FieldKindDOBDay   FieldKind = "dob_day"
	FieldKindDOBMonth FieldKind = "dob_month"
	FieldKindDOBYear  FieldKind = "dob_year"
	FieldKindCaptcha  FieldKind = "captcha"
	FieldKindSubmit   FieldKind = "submit"
	FieldKindOther    FieldKind = "other"
)

// ValidFieldKind reports whether k is a member of the FieldKind enum.
func ValidFieldKind(k FieldKind) bool {
	switch k {
	case FieldKindText, FieldKindEmail, FieldKindPassword, FieldKindSelect,
		FieldKindCheckbox, FieldKindRadio, FieldKindDOBDay, FieldKindDOBMonth,
		FieldKindDOBYear, FieldKindCaptcha, FieldKindSubmit, FieldKindOther:
		return true
	}
	return false
}

// FieldDescriptor is the canonical record of an observed form field.
type FieldDescriptor struct {
	Tag          string   `json:"tag"`
	Type         string   `json:"type,omitempty"`
	Name         string   `json:"name,omitempty"`
	ID           string   `json:"id,omitempty"`
	Label        string   `json:"label,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty"`
	AriaLabel    string   `json:"aria_label,omitempty"`
	Autocomplete string   `json:"autocomplete,omitempty"`
	Options      []string `json:"options,omitempty"` // select/radio options, visible text
	Visible      bool     `json:"visible"`
	Disabled     bool     `json:"disabled"`
}

// Selector returns the best CSS selector for the field, preferring id over name.
func (f *FieldDescriptor) Selector() string {
	if f.ID != "" {
		return "#" + f.ID
	}
	if f.Name != "" {
		return f.Tag + "[name='" + f.Name + "']"
	}
	return ""
}

// MatchSource records which text source produced a pattern match.
type MatchSource string

const (
	MatchSourceLabel       MatchSource = "label"
	MatchSourcePlaceholder MatchSource = "placeholder"
	MatchSourceAttribute   MatchSource = "attribute"
	MatchSourceNone        MatchSource = "none"
)

// PlanSource records which resolver layer produced a field plan.
type PlanSource string

const (
	PlanSourceCached  PlanSource = "cached"
	PlanSourceAI      PlanSource = "ai"
	PlanSourcePattern PlanSource = "pattern"
)

// FieldEntry is one (selector -> profile key) binding in a field plan.
type FieldEntry struct {
	Selector   string    `json:"selector"`
	ProfileKey string    `json:"profile_key"`
	Kind       FieldKind `json:"field_kind"`
	Confidence float64   `json:"confidence"`

	// Special-handler annotations harvested during resolution
	ConfirmPassword bool `json:"confirm_password,omitempty"` // reuse the primary password value
	RequiredCheck   bool `json:"required_check,omitempty"`   // checkbox must be checked (terms/consent)
	SkipCheck       bool `json:"skip_check,omitempty"`       // checkbox left alone (newsletter)
}

// FieldPlan is the ordered sequence of fill instructions for one form.
type FieldPlan struct {
	Entries []FieldEntry `json:"entries"`
	Source  PlanSource   `json:"source"`
}

// Empty reports whether the plan has no entries.
func (p *FieldPlan) Empty() bool {
	return p == nil || len(p.Entries) == 0
}

// Clone returns a deep copy of the plan.
func (p *FieldPlan) Clone() *FieldPlan {
	if p == nil {
		return nil
	}
	entries := make([]FieldEntry, len(p.Entries))
	copy(entries, p.Entries)
	return &FieldPlan{Entries: entries, Source: p.Source}
}
