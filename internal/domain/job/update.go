package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
)

// StageUpdate is the partial contribution of one stage. Each variant only
// carries the fields its stage is allowed to write.
type StageUpdate interface {
	Stage() StageID
	validate() error
}

type DiscoveryUpdate struct {
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Company      string    `json:"company"`
	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

type MetadataUpdate struct {
	Location        string          `json:"location" description:"Country or region where the job is eligible, e.g. Costa Rica or LATAM"`
	WorkMode        WorkMode        `json:"work_mode" enum:"Remote,Hybrid,Onsite"`
	EmploymentType  EmploymentType  `json:"employment_type" enum:"Full-time,Part-time,Contract,Freelance,Temporary,Internship"`
	ExperienceLevel ExperienceLevel `json:"experience_level" enum:"Entry-level,Junior,Mid-level,Senior,Lead,Principal,Executive"`
	JobFunction     JobFunction     `json:"job_function" enum:"Technology & Engineering,Sales & Business Development,Marketing & Communications,Operations & Logistics,Finance & Accounting,Human Resources,Customer Success & Support,Product Management,Data & Analytics,Healthcare & Medical,Legal & Compliance,Design & Creative,Administrative & Office,Consulting & Strategy,General Management,Other"`
	Province        string          `json:"province" description:"Province or state, empty when not mentioned"`
	City            string          `json:"city" description:"City, empty when not mentioned"`
	Description     string          `json:"description" description:"Short summary of the role"`
}

type SkillsUpdate struct {
	Responsibilities []string `json:"responsibilities" description:"Main responsibilities, at most 10"`
	SkillMustHave    []string `json:"skill_must_have" description:"Required skills, 5 to 10 items"`
	SkillNiceToHave  []string `json:"skill_nice_to_have" description:"Nice to have skills, 5 to 10 items"`
	Benefits         []string `json:"benefits" description:"Benefits offered"`
}

type TechnologyUpdate struct {
	Technologies     []Technology `json:"technologies" description:"Technologies mentioned by the posting"`
	MainTechnologies []string     `json:"main_technologies" description:"Names of the most important technologies, at most 10"`
}

func (DiscoveryUpdate) Stage() StageID  { return StageDiscovery }
func (MetadataUpdate) Stage() StageID   { return StageMetadata }
func (SkillsUpdate) Stage() StageID     { return StageSkills }
func (TechnologyUpdate) Stage() StageID { return StageTechnology }

func (u DiscoveryUpdate) validate() error {
	if !notBlank(u.URL) {
		return newValidationError(StageDiscovery, "url", "is required")
	}
	if !notBlank(u.Title) {
		return newValidationError(StageDiscovery, "title", "is required")
	}
	if !notBlank(u.Company) {
		return newValidationError(StageDiscovery, "company", "is required")
	}
	return nil
}

func (u MetadataUpdate) validate() error {
	if u.WorkMode != "" && !u.WorkMode.Valid() {
		return newValidationError(StageMetadata, "work_mode", "value %q not in closed set", u.WorkMode)
	}
	if u.EmploymentType != "" && !u.EmploymentType.Valid() {
		return newValidationError(StageMetadata, "employment_type", "value %q not in closed set", u.EmploymentType)
	}
	if u.ExperienceLevel != "" && !u.ExperienceLevel.Valid() {
		return newValidationError(StageMetadata, "experience_level", "value %q not in closed set", u.ExperienceLevel)
	}
	if u.JobFunction != "" && !u.JobFunction.Valid() {
		return newValidationError(StageMetadata, "job_function", "value %q not in closed set", u.JobFunction)
	}
	return nil
}

func (u SkillsUpdate) validate() error {
	bounded := []struct {
		field string
		items []string
	}{
		{"responsibilities", u.Responsibilities},
		{"skill_must_have", u.SkillMustHave},
		{"skill_nice_to_have", u.SkillNiceToHave},
	}
	for _, b := range bounded {
		if n := len(cleanList(b.items)); n > MaxListItems {
			return newValidationError(StageSkills, b.field, "has %d items, max %d", n, MaxListItems)
		}
	}
	return nil
}

func (u TechnologyUpdate) validate() error {
	for i, t := range u.Technologies {
		if !notBlank(t.Name) {
			return newValidationError(StageTechnology, "technologies", "entry %d has empty name", i)
		}
	}
	if n := len(cleanList(u.MainTechnologies)); n > MaxListItems {
		return newValidationError(StageTechnology, "main_technologies", "has %d items, max %d", n, MaxListItems)
	}
	return nil
}

// DecodeStageUpdate decodes an extractor payload into the variant of the given
// stage. Keys outside the stage's field group, keys that only match a field
// case-insensitively and data after the object are rejected.
func DecodeStageUpdate(stage StageID, raw []byte) (StageUpdate, error) {
	var target StageUpdate
	switch stage {
	case StageDiscovery:
		target = &DiscoveryUpdate{}
	case StageMetadata:
		target = &MetadataUpdate{}
	case StageSkills:
		target = &SkillsUpdate{}
	case StageTechnology:
		target = &TechnologyUpdate{}
	default:
		return nil, newValidationError(stage, "", "unknown stage")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, newValidationError(stage, unknownFieldName(err), "decode payload: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, newValidationError(stage, "", "decode payload: trailing data after object")
	}
	if key := inexactKey(raw, reflect.TypeOf(target).Elem()); key != "" {
		return nil, newValidationError(stage, key, "decode payload: unknown field %q", key)
	}

	switch v := target.(type) {
	case *DiscoveryUpdate:
		return *v, nil
	case *MetadataUpdate:
		return *v, nil
	case *SkillsUpdate:
		return *v, nil
	case *TechnologyUpdate:
		return *v, nil
	}
	return nil, fmt.Errorf("unreachable stage variant %T", target)
}

var unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// inexactKey returns the first object key in raw, at any depth, that is not
// spelled exactly like a json tag of t.
func inexactKey(raw json.RawMessage, t reflect.Type) string {
	switch {
	case reflect.PointerTo(t).Implements(unmarshalerType):
		return ""
	case t.Kind() == reflect.Struct:
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		fields := make(map[string]reflect.Type, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" {
				name = f.Name
			}
			fields[name] = f.Type
		}
		for key, val := range obj {
			ft, ok := fields[key]
			if !ok {
				return key
			}
			if k := inexactKey(val, ft); k != "" {
				return k
			}
		}
	case t.Kind() == reflect.Slice:
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return ""
		}
		for _, item := range items {
			if k := inexactKey(item, t.Elem()); k != "" {
				return k
			}
		}
	}
	return ""
}

func unknownFieldName(err error) string {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(msg, prefix), `"`)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
