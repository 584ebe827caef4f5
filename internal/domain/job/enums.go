package job

import (
	"fmt"
	"strings"
)

type StageID int

const (
	StageDiscovery  StageID = 1
	StageMetadata   StageID = 2
	StageSkills     StageID = 3
	StageTechnology StageID = 4
)

var AllStages = []StageID{StageDiscovery, StageMetadata, StageSkills, StageTechnology}

func (s StageID) Tag() string {
	return fmt.Sprintf("stage_%d", int(s))
}

func (s StageID) String() string {
	switch s {
	case StageDiscovery:
		return "discovery"
	case StageMetadata:
		return "metadata"
	case StageSkills:
		return "skills"
	case StageTechnology:
		return "technology"
	default:
		return "unknown"
	}
}

func (s StageID) Valid() bool {
	return s >= StageDiscovery && s <= StageTechnology
}

// ParseStage accepts "stage_2", "2" or the stage name ("metadata").
func ParseStage(raw string) (StageID, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.TrimPrefix(v, "stage_")
	for _, s := range AllStages {
		if v == fmt.Sprintf("%d", int(s)) || v == s.String() {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", raw)
}

type WorkMode string

const (
	WorkModeRemote WorkMode = "Remote"
	WorkModeHybrid WorkMode = "Hybrid"
	WorkModeOnsite WorkMode = "Onsite"
)

var workModes = []WorkMode{WorkModeRemote, WorkModeHybrid, WorkModeOnsite}

func (w WorkMode) Valid() bool {
	for _, v := range workModes {
		if w == v {
			return true
		}
	}
	return false
}

type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "Full-time"
	EmploymentPartTime   EmploymentType = "Part-time"
	EmploymentContract   EmploymentType = "Contract"
	EmploymentFreelance  EmploymentType = "Freelance"
	EmploymentTemporary  EmploymentType = "Temporary"
	EmploymentInternship EmploymentType = "Internship"
)

var employmentTypes = []EmploymentType{
	EmploymentFullTime, EmploymentPartTime, EmploymentContract,
	EmploymentFreelance, EmploymentTemporary, EmploymentInternship,
}

func (e EmploymentType) Valid() bool {
	for _, v := range employmentTypes {
		if e == v {
			return true
		}
	}
	return false
}

type ExperienceLevel string

const (
	ExperienceEntryLevel ExperienceLevel = "Entry-level"
	ExperienceJunior     ExperienceLevel = "Junior"
	ExperienceMidLevel   ExperienceLevel = "Mid-level"
	ExperienceSenior     ExperienceLevel = "Senior"
	ExperienceLead       ExperienceLevel = "Lead"
	ExperiencePrincipal  ExperienceLevel = "Principal"
	ExperienceExecutive  ExperienceLevel = "Executive"
)

var experienceLevels = []ExperienceLevel{
	ExperienceEntryLevel, ExperienceJunior, ExperienceMidLevel, ExperienceSenior,
	ExperienceLead, ExperiencePrincipal, ExperienceExecutive,
}

func (e ExperienceLevel) Valid() bool {
	for _, v := range experienceLevels {
		if e == v {
			return true
		}
	}
	return false
}

type JobFunction string

const (
	FunctionTechnologyEngineering    JobFunction = "Technology & Engineering"
	FunctionSalesBusinessDevelopment JobFunction = "Sales & Business Development"
	FunctionMarketingCommunications  JobFunction = "Marketing & Communications"
	FunctionOperationsLogistics      JobFunction = "Operations & Logistics"
	FunctionFinanceAccounting        JobFunction = "Finance & Accounting"
	FunctionHumanResources           JobFunction = "Human Resources"
	FunctionCustomerSuccessSupport   JobFunction = "Customer Success & Support"
	FunctionProductManagement        JobFunction = "Product Management"
	FunctionDataAnalytics            JobFunction = "Data & Analytics"
	FunctionHealthcareMedical        JobFunction = "Healthcare & Medical"
	FunctionLegalCompliance          JobFunction = "Legal & Compliance"
	FunctionDesignCreative           JobFunction = "Design & Creative"
	FunctionAdministrativeOffice     JobFunction = "Administrative & Office"
	FunctionConsultingStrategy       JobFunction = "Consulting & Strategy"
	FunctionGeneralManagement        JobFunction = "General Management"
	FunctionOther                    JobFunction = "Other"
)

var jobFunctions = []JobFunction{
	FunctionTechnologyEngineering, FunctionSalesBusinessDevelopment, FunctionMarketingCommunications,
	FunctionOperationsLogistics, FunctionFinanceAccounting, FunctionHumanResources,
	FunctionCustomerSuccessSupport, FunctionProductManagement, FunctionDataAnalytics,
	FunctionHealthcareMedical, FunctionLegalCompliance, FunctionDesignCreative,
	FunctionAdministrativeOffice, FunctionConsultingStrategy, FunctionGeneralManagement,
	FunctionOther,
}

func (f JobFunction) Valid() bool {
	for _, v := range jobFunctions {
		if f == v {
			return true
		}
	}
	return false
}

func WorkModes() []WorkMode               { return append([]WorkMode(nil), workModes...) }
func EmploymentTypes() []EmploymentType   { return append([]EmploymentType(nil), employmentTypes...) }
func ExperienceLevels() []ExperienceLevel { return append([]ExperienceLevel(nil), experienceLevels...) }
func JobFunctions() []JobFunction         { return append([]JobFunction(nil), jobFunctions...) }
