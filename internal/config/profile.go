package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile анкета пользователя, из которой планировщик берёт ответы для форм.
type Profile struct {
	Personal          Personal          `yaml:"personal"`
	Location          Location          `yaml:"location"`
	WorkAuthorization WorkAuthorization `yaml:"work_authorization"`
	WorkPreferences   WorkPreferences   `yaml:"work_preferences"`
	Demographics      Demographics      `yaml:"demographics"`
	Education         Education         `yaml:"education"`
	Experience        Experience        `yaml:"experience"`
	CommonAnswers     CommonAnswers     `yaml:"common_answers"`
	Files             Files             `yaml:"files"`
}

type Personal struct {
	FullName       string `yaml:"full_name"`
	FirstName      string `yaml:"first_name"`
	LastName       string `yaml:"last_name"`
	Email          string `yaml:"email"`
	EmailAlternate string `yaml:"email_alternate"`
	Phone          string `yaml:"phone"`
	LinkedIn       string `yaml:"linkedin"`
}

type Location struct {
	CurrentCity     string   `yaml:"current_city"`
	FullLocation    string   `yaml:"full_location"`
	ZipCode         string   `yaml:"zip_code"`
	PreferredCities []string `yaml:"preferred_cities"`
}

type WorkAuthorization struct {
	AuthorizedToWorkInUS   bool   `yaml:"authorized_to_work_in_us"`
	RequireVisaSponsorship bool   `yaml:"require_visa_sponsorship"`
	CurrentVisaStatus      string `yaml:"current_visa_status"`
}

type WorkPreferences struct {
	SalaryExpectation string `yaml:"salary_expectation"`
	EarliestStartDate string `yaml:"earliest_start_date"`
}

type Demographics struct {
	Gender           string `yaml:"gender"`
	Ethnicity        string `yaml:"ethnicity"`
	VeteranStatus    string `yaml:"veteran_status"`
	DisabilityStatus string `yaml:"disability_status"`
}

type Degree struct {
	Field      string `yaml:"field"`
	University string `yaml:"university"`
	EndDate    string `yaml:"end_date"`
}

type Education struct {
	HighestDegree string   `yaml:"highest_degree"`
	Degrees       []Degree `yaml:"degrees"`
}

type Experience struct {
	YearsOfExperience string `yaml:"years_of_experience"`
	CurrentTitle      string `yaml:"current_title"`
	CurrentCompany    string `yaml:"current_company"`
}

type CommonAnswers struct {
	HasRelativeAtCompany      bool   `yaml:"has_relative_at_company"`
	PreviouslyWorkedAtCompany bool   `yaml:"previously_worked_at_company"`
	IsOver18                  bool   `yaml:"is_over_18"`
	HasDriversLicense         bool   `yaml:"has_drivers_license"`
	WillingBackgroundCheck    bool   `yaml:"willing_background_check"`
	WillingDrugTest           bool   `yaml:"willing_drug_test"`
	ReferralSource            string `yaml:"referral_source"`
}

// Files белый список каталогов для загрузки резюме.
type Files struct {
	AllowedDirectories []string `yaml:"allowed_directories"`
	DefaultResume      string   `yaml:"default_resume"`
}

// LoadProfile читает YAML анкету. Отсутствующий файл даёт пустую анкету.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("ошибка чтения анкеты %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ошибка разбора анкеты %s: %w", path, err)
	}
	return &p, nil
}

// LoadGuidelines читает необязательные правила работы агента в Markdown.
func LoadGuidelines(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Empty true, если анкета не заполнена.
func (p *Profile) Empty() bool {
	return p == nil || (p.Personal.FullName == "" && p.Personal.Email == "" && p.Location.CurrentCity == "")
}

// PromptText блок с данными пользователя для промпта планировщика.
func (p *Profile) PromptText() string {
	if p.Empty() {
		return "(user profile is not configured)"
	}

	var degree Degree
	if len(p.Education.Degrees) > 0 {
		degree = p.Education.Degrees[0]
	}

	var b strings.Builder
	b.WriteString("USER PROFILE (use these real values, never invent data)\n\n")

	b.WriteString("## Personal\n")
	fmt.Fprintf(&b, "- Name: %s (first: %s, last: %s)\n", p.Personal.FullName, p.Personal.FirstName, p.Personal.LastName)
	fmt.Fprintf(&b, "- Email: %s", p.Personal.Email)
	if p.Personal.EmailAlternate != "" {
		fmt.Fprintf(&b, " or %s", p.Personal.EmailAlternate)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Phone: %s\n", p.Personal.Phone)
	fmt.Fprintf(&b, "- LinkedIn: %s\n\n", p.Personal.LinkedIn)

	b.WriteString("## Location\n")
	fmt.Fprintf(&b, "- Lives in: %s (%s), zip %s\n", p.Location.CurrentCity, p.Location.FullLocation, p.Location.ZipCode)
	b.WriteString("- A \"Location\" input asks where the user lives. The job's office location is read-only information.\n")
	if len(p.Location.PreferredCities) > 0 {
		fmt.Fprintf(&b, "- Preferred office cities: %s. For \"which office\" checkboxes select every option matching this list (fuzzy: NYC = New York).\n",
			strings.Join(p.Location.PreferredCities, ", "))
	}
	b.WriteString("\n")

	b.WriteString("## Work authorization\n")
	fmt.Fprintf(&b, "- Authorized to work in US: %s\n", yesNo(p.WorkAuthorization.AuthorizedToWorkInUS))
	fmt.Fprintf(&b, "- Requires visa sponsorship: %s\n", yesNo(p.WorkAuthorization.RequireVisaSponsorship))
	fmt.Fprintf(&b, "- Current visa: %s\n\n", p.WorkAuthorization.CurrentVisaStatus)

	b.WriteString("## Voluntary self-identification\n")
	fmt.Fprintf(&b, "- Gender: %s\n- Ethnicity: %s\n- Veteran: %s\n- Disability: %s\n\n",
		p.Demographics.Gender, p.Demographics.Ethnicity, p.Demographics.VeteranStatus, p.Demographics.DisabilityStatus)

	b.WriteString("## Education and experience\n")
	fmt.Fprintf(&b, "- Degree: %s in %s, %s (%s)\n", p.Education.HighestDegree, degree.Field, degree.University, degree.EndDate)
	fmt.Fprintf(&b, "- Years of experience: %s\n", p.Experience.YearsOfExperience)
	fmt.Fprintf(&b, "- Current: %s @ %s\n", p.Experience.CurrentTitle, p.Experience.CurrentCompany)
	fmt.Fprintf(&b, "- Salary expectation: %s\n- Earliest start date: %s\n\n", p.WorkPreferences.SalaryExpectation, p.WorkPreferences.EarliestStartDate)

	referral := p.CommonAnswers.ReferralSource
	if referral == "" {
		referral = "LinkedIn"
	}
	b.WriteString("## Common questions\n")
	fmt.Fprintf(&b, "- Relative at this company? %s\n", yesNo(p.CommonAnswers.HasRelativeAtCompany))
	fmt.Fprintf(&b, "- Previously worked here? %s\n", yesNo(p.CommonAnswers.PreviouslyWorkedAtCompany))
	fmt.Fprintf(&b, "- At least 18 years old? %s\n", yesNo(p.CommonAnswers.IsOver18))
	fmt.Fprintf(&b, "- Valid driver's license? %s\n", yesNo(p.CommonAnswers.HasDriversLicense))
	fmt.Fprintf(&b, "- Background check? %s\n", yesNo(p.CommonAnswers.WillingBackgroundCheck))
	fmt.Fprintf(&b, "- Drug test? %s\n", yesNo(p.CommonAnswers.WillingDrugTest))
	fmt.Fprintf(&b, "- How did you hear about us? %s\n", referral)
	b.WriteString("- Any other unknown yes/no question: answer No or N/A.\n")

	return strings.TrimSpace(b.String())
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
