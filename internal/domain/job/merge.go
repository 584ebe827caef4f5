package job

import (
	"reflect"
	"strings"
	"time"
)

// Merge combines a stored record with one stage's partial update and returns
// a new record. existing is never modified. A nil existing is only valid for
// a discovery update, which seeds a fresh record.
//
// A stage only writes its own field group: non-empty scalars overwrite, non-empty
// lists replace, technologies are unioned by name. Re-applying an update that
// changes nothing returns the stored record unchanged, updated_at included.
func Merge(existing *Record, incoming StageUpdate, stage StageID, now time.Time) (Record, error) {
	if incoming == nil {
		return Record{}, newValidationError(stage, "", "empty update")
	}
	if !stage.Valid() {
		return Record{}, newValidationError(stage, "", "unknown stage")
	}
	if incoming.Stage() != stage {
		return Record{}, newValidationError(stage, "", "update carries %s fields", incoming.Stage().Tag())
	}
	if err := incoming.validate(); err != nil {
		return Record{}, err
	}

	if existing == nil {
		d, ok := incoming.(DiscoveryUpdate)
		if !ok {
			return Record{}, newValidationError(stage, "signature", "no stored record to enrich")
		}
		return seed(d, now), nil
	}

	merged := existing.Clone()
	var err error
	switch u := incoming.(type) {
	case DiscoveryUpdate:
		err = applyDiscovery(&merged, u)
	case MetadataUpdate:
		applyMetadata(&merged, u)
	case SkillsUpdate:
		applySkills(&merged, u)
	case TechnologyUpdate:
		err = applyTechnology(&merged, u)
	}
	if err != nil {
		return Record{}, err
	}
	merged.refreshCompletion()

	if SameContent(*existing, merged) {
		return existing.Clone(), nil
	}
	merged.UpdatedAt = now
	if merged.UpdatedAt.Before(merged.CreatedAt) {
		merged.UpdatedAt = merged.CreatedAt
	}
	return merged, nil
}

// MergeRecords folds a full record into the stored one by splitting it into
// its stage updates. Groups that carry no data are skipped.
func MergeRecords(existing *Record, incoming Record, now time.Time) (Record, error) {
	if incoming.Signature != "" && incoming.Signature != Signature(incoming.URL, incoming.Title, incoming.Company) {
		return Record{}, newValidationError(StageDiscovery, "signature", "does not match url/title/company")
	}

	current, err := Merge(existing, DiscoveryUpdate{
		Title:        incoming.Title,
		URL:          incoming.URL,
		Company:      incoming.Company,
		DiscoveredAt: incoming.DiscoveredAt,
	}, StageDiscovery, now)
	if err != nil {
		return Record{}, err
	}

	updates := []StageUpdate{
		MetadataUpdate{
			Location:        incoming.Location,
			WorkMode:        incoming.WorkMode,
			EmploymentType:  incoming.EmploymentType,
			ExperienceLevel: incoming.ExperienceLevel,
			JobFunction:     incoming.JobFunction,
			Province:        incoming.Province,
			City:            incoming.City,
			Description:     incoming.Description,
		},
		SkillsUpdate{
			Responsibilities: incoming.Responsibilities,
			SkillMustHave:    incoming.SkillMustHave,
			SkillNiceToHave:  incoming.SkillNiceToHave,
			Benefits:         incoming.Benefits,
		},
		TechnologyUpdate{
			Technologies:     incoming.Technologies,
			MainTechnologies: incoming.MainTechnologies,
		},
	}
	for _, u := range updates {
		if isEmptyUpdate(u) {
			continue
		}
		next, err := Merge(&current, u, u.Stage(), now)
		if err != nil {
			return Record{}, err
		}
		current = next
	}
	return current, nil
}

// SameContent compares two records ignoring updated_at.
func SameContent(a, b Record) bool {
	a.UpdatedAt = time.Time{}
	b.UpdatedAt = time.Time{}
	return reflect.DeepEqual(normalizeEmpty(a), normalizeEmpty(b))
}

func seed(d DiscoveryUpdate, now time.Time) Record {
	r := Record{
		Signature:    Signature(d.URL, d.Title, d.Company),
		Title:        strings.TrimSpace(d.Title),
		URL:          strings.TrimSpace(d.URL),
		Company:      strings.TrimSpace(d.Company),
		DiscoveredAt: d.DiscoveredAt,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if r.DiscoveredAt.IsZero() {
		r.DiscoveredAt = now
	}
	r.refreshCompletion()
	return r
}

func applyDiscovery(r *Record, u DiscoveryUpdate) error {
	if Signature(u.URL, u.Title, u.Company) != r.Signature {
		return newValidationError(StageDiscovery, "signature", "identity fields differ from stored record")
	}
	r.Active = true
	return nil
}

func applyMetadata(r *Record, u MetadataUpdate) {
	setString(&r.Location, u.Location)
	setString(&r.Province, u.Province)
	setString(&r.City, u.City)
	setString(&r.Description, u.Description)
	if u.WorkMode != "" {
		r.WorkMode = u.WorkMode
	}
	if u.EmploymentType != "" {
		r.EmploymentType = u.EmploymentType
	}
	if u.ExperienceLevel != "" {
		r.ExperienceLevel = u.ExperienceLevel
	}
	if u.JobFunction != "" {
		r.JobFunction = u.JobFunction
	}
}

func applySkills(r *Record, u SkillsUpdate) {
	setList(&r.Responsibilities, u.Responsibilities)
	setList(&r.SkillMustHave, u.SkillMustHave)
	setList(&r.SkillNiceToHave, u.SkillNiceToHave)
	setList(&r.Benefits, u.Benefits)
}

func applyTechnology(r *Record, u TechnologyUpdate) error {
	techs := append([]Technology(nil), r.Technologies...)
	index := make(map[string]int, len(techs))
	for i, t := range techs {
		index[technologyKey(t.Name)] = i
	}
	for _, in := range u.Technologies {
		key := technologyKey(in.Name)
		category := strings.TrimSpace(in.Category)
		if i, ok := index[key]; ok {
			if category != "" {
				techs[i].Category = category
			}
			techs[i].Required = techs[i].Required || in.Required
			continue
		}
		index[key] = len(techs)
		techs = append(techs, Technology{
			Name:     strings.TrimSpace(in.Name),
			Category: category,
			Required: in.Required,
		})
	}
	if len(techs) > 0 {
		r.Technologies = techs
	}

	main := dedupeFold(cleanList(u.MainTechnologies))
	if len(main) == 0 {
		return nil
	}
	for _, name := range main {
		if _, ok := index[technologyKey(name)]; !ok {
			return newValidationError(StageTechnology, "main_technologies", "%q is not a listed technology", name)
		}
	}
	r.MainTechnologies = main
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if cleaned := cleanList(v); len(cleaned) > 0 {
		*dst = cleaned
	}
}

func dedupeFold(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isEmptyUpdate(u StageUpdate) bool {
	switch v := u.(type) {
	case MetadataUpdate:
		return v == MetadataUpdate{}
	case SkillsUpdate:
		return len(v.Responsibilities) == 0 && len(v.SkillMustHave) == 0 &&
			len(v.SkillNiceToHave) == 0 && len(v.Benefits) == 0
	case TechnologyUpdate:
		return len(v.Technologies) == 0 && len(v.MainTechnologies) == 0
	}
	return false
}

// normalizeEmpty maps empty slices to nil so a decoded document and an
// in-memory record compare equal.
func normalizeEmpty(r Record) Record {
	nilIfEmpty := func(s []string) []string {
		if len(s) == 0 {
			return nil
		}
		return s
	}
	r.Responsibilities = nilIfEmpty(r.Responsibilities)
	r.SkillMustHave = nilIfEmpty(r.SkillMustHave)
	r.SkillNiceToHave = nilIfEmpty(r.SkillNiceToHave)
	r.Benefits = nilIfEmpty(r.Benefits)
	r.MainTechnologies = nilIfEmpty(r.MainTechnologies)
	if len(r.Technologies) == 0 {
		r.Technologies = nil
	}
	return r
}
