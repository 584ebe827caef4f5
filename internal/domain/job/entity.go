package job

import (
	"strings"
	"time"
)

const MaxListItems = 10

type Technology struct {
	Name     string `json:"name" description:"Technology name as written in the posting"`
	Category string `json:"category" description:"Kind of technology, e.g. programming, framework, database, cloud, tool"`
	Required bool   `json:"required" description:"True when the posting lists it as mandatory"`
}

// Record is the progressively enriched job listing document. Field names are
// the persisted document keys.
type Record struct {
	Signature    string    `json:"signature"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Company      string    `json:"company"`
	DiscoveredAt time.Time `json:"discovered_at"`

	Location        string          `json:"location,omitempty"`
	WorkMode        WorkMode        `json:"work_mode,omitempty"`
	EmploymentType  EmploymentType  `json:"employment_type,omitempty"`
	ExperienceLevel ExperienceLevel `json:"experience_level,omitempty"`
	JobFunction     JobFunction     `json:"job_function,omitempty"`
	Province        string          `json:"province,omitempty"`
	City            string          `json:"city,omitempty"`
	Description     string          `json:"description,omitempty"`

	Responsibilities []string `json:"responsibilities,omitempty"`
	SkillMustHave    []string `json:"skill_must_have,omitempty"`
	SkillNiceToHave  []string `json:"skill_nice_to_have,omitempty"`
	Benefits         []string `json:"benefits,omitempty"`

	Technologies     []Technology `json:"technologies,omitempty"`
	MainTechnologies []string     `json:"main_technologies,omitempty"`

	Stage2Completed bool `json:"stage_2_completed"`
	Stage3Completed bool `json:"stage_3_completed"`
	Stage4Completed bool `json:"stage_4_completed"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStageComplete reports whether every required field of the stage group is
// populated. Stage 1 is complete once the identity fields exist.
func (r Record) IsStageComplete(stage StageID) bool {
	switch stage {
	case StageDiscovery:
		return r.Signature != "" && notBlank(r.Title) && notBlank(r.URL) && notBlank(r.Company)
	case StageMetadata:
		return notBlank(r.Location) &&
			r.WorkMode != "" &&
			r.EmploymentType != "" &&
			r.ExperienceLevel != "" &&
			r.JobFunction != "" &&
			notBlank(r.Description)
	case StageSkills:
		return len(r.Responsibilities) > 0 && len(r.SkillMustHave) > 0
	case StageTechnology:
		return len(r.Technologies) > 0
	default:
		return false
	}
}

func (r Record) CompletedStages() []StageID {
	out := make([]StageID, 0, len(AllStages))
	for _, s := range AllStages {
		if r.IsStageComplete(s) {
			out = append(out, s)
		}
	}
	return out
}

// NextStage returns the lowest stage not yet complete, or false when the
// record is fully processed.
func (r Record) NextStage() (StageID, bool) {
	for _, s := range AllStages {
		if !r.IsStageComplete(s) {
			return s, true
		}
	}
	return 0, false
}

func (r Record) FullyProcessed() bool {
	_, pending := r.NextStage()
	return !pending
}

func (r *Record) refreshCompletion() {
	r.Stage2Completed = r.IsStageComplete(StageMetadata)
	r.Stage3Completed = r.IsStageComplete(StageSkills)
	r.Stage4Completed = r.IsStageComplete(StageTechnology)
}

// Clone returns a deep copy; slices are never shared with the receiver.
func (r Record) Clone() Record {
	out := r
	out.Responsibilities = cloneStrings(r.Responsibilities)
	out.SkillMustHave = cloneStrings(r.SkillMustHave)
	out.SkillNiceToHave = cloneStrings(r.SkillNiceToHave)
	out.Benefits = cloneStrings(r.Benefits)
	out.MainTechnologies = cloneStrings(r.MainTechnologies)
	if r.Technologies != nil {
		out.Technologies = append([]Technology(nil), r.Technologies...)
	}
	return out
}

func (r Record) HasTechnology(name string) bool {
	key := technologyKey(name)
	for _, t := range r.Technologies {
		if technologyKey(t.Name) == key {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

func technologyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
