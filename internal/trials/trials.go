package trials

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

// UnknownID marks trials whose registry identifier could not be found.
const UnknownID = "unknown_id"

const (
	protocolSectionKey   = "protocolSection"
	contactsLocationsKey = "contactsLocationsModule"
)

type Trials struct {
	Items []*Trial
}

// Trial is a single registry study. Raw preserves the document exactly as
// loaded so the full detail reaches the evaluation prompt.
type Trial struct {
	ID  string
	Raw map[string]any
}

// identification mirrors the registry path holding the NCT number.
type identification struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID string `mapstructure:"nctId"`
		} `mapstructure:"identificationModule"`
	} `mapstructure:"protocolSection"`
}

// FromFile loads trials from a JSON export. Both a bare array of studies and a
// {"studies": [...]} wrapper are accepted.
func FromFile(path string) (*Trials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trials file: %w", err)
	}

	trials, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing trials file %q: %w", path, err)
	}

	return trials, nil
}

// Parse decodes a registry export into a list of trials.
func Parse(data []byte) (*Trials, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapper struct {
			Studies []map[string]any `json:"studies"`
		}
		if werr := json.Unmarshal(data, &wrapper); werr != nil || wrapper.Studies == nil {
			return nil, fmt.Errorf("expected an array of studies or a studies wrapper: %w", err)
		}
		raw = wrapper.Studies
	}

	items := make([]*Trial, 0, len(raw))
	for _, doc := range raw {
		items = append(items, &Trial{ID: extractID(doc), Raw: doc})
	}

	return &Trials{Items: items}, nil
}

func extractID(doc map[string]any) string {
	var ident identification
	if err := mapstructure.Decode(doc, &ident); err != nil {
		return UnknownID
	}

	if id := ident.ProtocolSection.IdentificationModule.NCTID; id != "" {
		return id
	}

	return UnknownID
}

func (t *Trials) Len() int {
	return len(t.Items)
}

func (t *Trials) IDs() []string {
	ids := make([]string, 0, len(t.Items))
	for _, trial := range t.Items {
		ids = append(ids, trial.ID)
	}
	return ids
}

// Subset returns the trials whose IDs are in the provided set, preserving the
// original order.
func (t *Trials) Subset(ids map[string]struct{}) *Trials {
	subset := &Trials{}
	for _, trial := range t.Items {
		if _, ok := ids[trial.ID]; ok {
			subset.Items = append(subset.Items, trial)
		}
	}
	return subset
}

// WithoutContactsLocations returns a deep copy of the trial with the registry
// contacts and locations module blanked out. The copy never aliases the
// original document.
func (t *Trial) WithoutContactsLocations() *Trial {
	copied := &Trial{ID: t.ID, Raw: deepCopyMap(t.Raw)}

	section, ok := copied.Raw[protocolSectionKey].(map[string]any)
	if !ok {
		return copied
	}

	if _, ok := section[contactsLocationsKey]; ok {
		section[contactsLocationsKey] = ""
	}

	return copied
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = deepCopyValue(item)
		}
		return items
	default:
		return v
	}
}
