package block

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Section groups fields in the settings sidebar.
type Section string

const (
	SectionMain   Section = "main"
	SectionBasics Section = "basics"
	SectionLayout Section = "layout"
)

// FieldType is the input widget a field is edited with.
type FieldType string

const (
	FieldInput      FieldType = "input"
	FieldSwitch     FieldType = "switch"
	FieldAssetInput FieldType = "assetInput"
	FieldTextarea   FieldType = "textarea"
	FieldSlider     FieldType = "slider"
)

// Rule is a pure predicate over a raw string value.
type Rule struct {
	Message  string
	Validate func(value string) bool
}

// Choice is one option of a slider.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ChangeHandler rewrites a value before it is written into the settings.
type ChangeHandler func(ctx context.Context, value any) (any, error)

// AssetResolver turns an uploaded block asset into its public URL.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, fieldID string) (string, error)
}

// Field is one editable setting. On and Off hold sub-fields that are only
// shown while this switch is on or off.
type Field struct {
	ID          string
	Type        FieldType
	Label       string
	Info        string
	Placeholder string
	SwitchLabel string
	HelperText  string
	Default     any
	Choices     []Choice
	Rules       []Rule
	On          []Field
	Off         []Field
	OnChange    ChangeHandler
}

// Structure is the full settings surface, in display order.
type Structure struct {
	Sections []SectionFields
}

// SectionFields is the ordered field list of one section.
type SectionFields struct {
	Section Section
	Fields  []Field
}

// ValidationError reports a rule violation for a single field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrUnknownField is returned for ids the structure does not declare.
var ErrUnknownField = errors.New("unknown settings field")

const (
	fixedHeightMessage = "Please use a numerical value with or without 'px'"
	mapStyleMessage    = "Invalid JSON, try using https://mapstyle.withgoogle.com"
)

var fixedHeightPattern = regexp.MustCompile(`^\d+(px)?$`)

// ValidFixedHeight reports whether v is a number with an optional px unit.
func ValidFixedHeight(v string) bool {
	return fixedHeightPattern.MatchString(v)
}

// ValidMapStyle reports whether v parses as JSON.
func ValidMapStyle(v string) bool {
	return json.Valid([]byte(v))
}

// NormalizeHeight appends the px unit to a bare number.
// Values that fail the fixed height rule return "".
func NormalizeHeight(v string) string {
	v = strings.TrimSpace(v)
	if !ValidFixedHeight(v) {
		return ""
	}
	if strings.HasSuffix(v, "px") {
		return v
	}
	return v + "px"
}

// DefaultStructure returns the settings surface of the map block.
// assets may be nil, in which case uploaded icons are stored as given.
func DefaultStructure(assets AssetResolver) Structure {
	markerIcon := Field{
		ID:    "markerIcon",
		Type:  FieldAssetInput,
		Label: "Marker icon",
	}
	if assets != nil {
		markerIcon.OnChange = func(ctx context.Context, _ any) (any, error) {
			return assets.ResolveAsset(ctx, "markerIcon")
		}
	}

	choices := make([]Choice, 0, 3)
	for _, p := range []FormatPreset{Format16to9, Format4to3, Format1to1} {
		choices = append(choices, Choice{Value: string(p), Label: p.Label()})
	}

	return Structure{Sections: []SectionFields{
		{Section: SectionMain, Fields: []Field{
			{
				ID:          "apiKey",
				Type:        FieldInput,
				Label:       "Google Maps API Key",
				Placeholder: "Paste your API Key here",
				Default:     "",
			},
		}},
		{Section: SectionBasics, Fields: []Field{
			{
				ID:      "allowMapControls",
				Type:    FieldSwitch,
				Label:   "Allow Map Controls",
				Default: true,
			},
			{
				ID:      "markerIconEnabled",
				Type:    FieldSwitch,
				Label:   "Custom Map Marker",
				Default: false,
				On:      []Field{markerIcon},
			},
			{
				ID:      "mapStyleEnabled",
				Type:    FieldSwitch,
				Label:   "Custom Map Style",
				Info:    "Create a new style on mapstyle.withgoogle.com, and paste the generated JSON into this field",
				Default: false,
				On: []Field{{
					ID:      "mapStyle",
					Type:    FieldTextarea,
					Label:   "Map style JSON",
					Default: "[]",
					Rules:   []Rule{{Message: mapStyleMessage, Validate: ValidMapStyle}},
				}},
			},
		}},
		{Section: SectionLayout, Fields: []Field{
			{
				ID:          "customMapFormat",
				Type:        FieldSwitch,
				Label:       "Map format",
				SwitchLabel: "Fixed height",
				Default:     false,
				On: []Field{{
					ID:          "fixedHeight",
					Type:        FieldInput,
					Label:       "Height",
					Placeholder: "500px",
					Rules:       []Rule{{Message: fixedHeightMessage, Validate: ValidFixedHeight}},
					OnChange: func(_ context.Context, v any) (any, error) {
						s, _ := v.(string)
						return NormalizeHeight(s), nil
					},
				}},
				Off: []Field{{
					ID:         "formatPreset",
					Type:       FieldSlider,
					Label:      "Aspect ratio",
					HelperText: "Choose the aspect ratio of the map",
					Default:    string(Format16to9),
					Choices:    choices,
				}},
			},
		}},
	}}
}

// Lookup finds a field anywhere in the structure, including sub-fields.
func (st Structure) Lookup(id string) (Field, bool) {
	var find func(fs []Field) (Field, bool)
	find = func(fs []Field) (Field, bool) {
		for _, f := range fs {
			if f.ID == id {
				return f, true
			}
			if sub, ok := find(f.On); ok {
				return sub, true
			}
			if sub, ok := find(f.Off); ok {
				return sub, true
			}
		}
		return Field{}, false
	}
	for _, sec := range st.Sections {
		if f, ok := find(sec.Fields); ok {
			return f, true
		}
	}
	return Field{}, false
}

// VisibleField is a field as the settings sidebar shows it for given settings.
type VisibleField struct {
	Section     Section   `json:"section"`
	ID          string    `json:"id"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label"`
	Info        string    `json:"info,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	SwitchLabel string    `json:"switchLabel,omitempty"`
	HelperText  string    `json:"helperText,omitempty"`
	Choices     []Choice  `json:"choices,omitempty"`
	Value       any       `json:"value"`
	Depth       int       `json:"depth"`
}

// Visible lists the fields shown for s. Sub-field visibility depends only
// on the value of their parent switch, so the result is deterministic.
func (st Structure) Visible(s Settings) []VisibleField {
	values := settingsValues(s)

	var out []VisibleField
	var walk func(sec Section, fs []Field, depth int)
	walk = func(sec Section, fs []Field, depth int) {
		for _, f := range fs {
			out = append(out, VisibleField{
				Section:     sec,
				ID:          f.ID,
				Type:        f.Type,
				Label:       f.Label,
				Info:        f.Info,
				Placeholder: f.Placeholder,
				SwitchLabel: f.SwitchLabel,
				HelperText:  f.HelperText,
				Choices:     f.Choices,
				Value:       valueOr(values, f.ID, f.Default),
				Depth:       depth,
			})
			if f.Type != FieldSwitch {
				continue
			}
			on, _ := values[f.ID].(bool)
			if on {
				walk(sec, f.On, depth+1)
			} else {
				walk(sec, f.Off, depth+1)
			}
		}
	}
	for _, sec := range st.Sections {
		walk(sec.Section, sec.Fields, 0)
	}
	return out
}

// Validate runs the rules of one field against a raw string value.
func (st Structure) Validate(id, raw string) error {
	f, ok := st.Lookup(id)
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknownField)
	}
	for _, r := range f.Rules {
		if !r.Validate(raw) {
			return &ValidationError{Field: id, Message: r.Message}
		}
	}
	return nil
}

// ValidatePatch checks the string fields of p that carry rules.
func (st Structure) ValidatePatch(p Patch) error {
	var errs []error
	check := func(id string, v *string) {
		if v == nil {
			return
		}
		if err := st.Validate(id, *v); err != nil {
			errs = append(errs, err)
		}
	}
	check("fixedHeight", p.FixedHeight)
	check("mapStyle", p.MapStyle)
	if p.FormatPreset != nil && !p.FormatPreset.Valid() {
		errs = append(errs, &ValidationError{Field: "formatPreset", Message: "Unknown aspect ratio"})
	}
	return errors.Join(errs...)
}

// Change validates a new value for one field, runs its change handler and
// returns the patch that writes it. Invalid values produce no patch.
func (st Structure) Change(ctx context.Context, id string, value any) (Patch, error) {
	f, ok := st.Lookup(id)
	if !ok {
		return Patch{}, fmt.Errorf("%q: %w", id, ErrUnknownField)
	}
	if raw, isString := value.(string); isString {
		if err := st.Validate(id, raw); err != nil {
			return Patch{}, err
		}
	}
	if f.OnChange != nil {
		v, err := f.OnChange(ctx, value)
		if err != nil {
			return Patch{}, fmt.Errorf("%s: %w", id, err)
		}
		value = v
	}

	data, err := json.Marshal(map[string]any{id: value})
	if err != nil {
		return Patch{}, err
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return Patch{}, &ValidationError{Field: id, Message: "Unexpected value type"}
	}
	if err := st.ValidatePatch(p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// settingsValues exposes settings by wire name for visibility decisions.
func settingsValues(s Settings) map[string]any {
	data, _ := json.Marshal(s)
	values := map[string]any{}
	_ = json.Unmarshal(data, &values)
	return values
}

func valueOr(values map[string]any, id string, def any) any {
	if v, ok := values[id]; ok {
		return v
	}
	return def
}
