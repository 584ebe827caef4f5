package company

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ParserType string

const (
	ParserDefault    ParserType = "default"
	ParserGreenhouse ParserType = "greenhouse"
	ParserAngular    ParserType = "angular"
)

func (p ParserType) Valid() bool {
	switch p {
	case ParserDefault, ParserGreenhouse, ParserAngular:
		return true
	}
	return false
}

type WebParser struct {
	Type              ParserType `yaml:"type"`
	JobBoardSelectors []string   `yaml:"job_board_selectors"`
	JobCardSelectors  []string   `yaml:"job_card_selectors"`
}

type Company struct {
	Name      string    `yaml:"name"`
	CareerURL string    `yaml:"career_url"`
	WebParser WebParser `yaml:"web_parser"`
	Enabled   *bool     `yaml:"enabled"`
}

// IsEnabled treats a missing flag as enabled.
func (c Company) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

var ErrInvalidCompany = errors.New("invalid company")

func (c Company) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCompany)
	}
	u, err := url.Parse(strings.TrimSpace(c.CareerURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s: career_url must be an absolute http(s) url", ErrInvalidCompany, c.Name)
	}
	if !c.WebParser.Type.Valid() {
		return fmt.Errorf("%w: %s: unknown parser type %q", ErrInvalidCompany, c.Name, c.WebParser.Type)
	}
	return nil
}

type catalogFile struct {
	Companies []Company `yaml:"companies"`
}

// LoadCatalog reads the company catalog. Invalid entries fail the whole load
// so a typo never silently drops a company.
func LoadCatalog(path string) ([]Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read company catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]Company, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse company catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Companies))
	out := make([]Company, 0, len(f.Companies))
	for _, c := range f.Companies {
		c.Name = strings.TrimSpace(c.Name)
		c.CareerURL = strings.TrimSpace(c.CareerURL)
		if c.WebParser.Type == "" {
			c.WebParser.Type = ParserDefault
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate company %q", ErrInvalidCompany, c.Name)
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Select returns the enabled companies, optionally narrowed to one name.
func Select(all []Company, name string) []Company {
	name = strings.TrimSpace(name)
	out := make([]Company, 0, len(all))
	for _, c := range all {
		if !c.IsEnabled() {
			continue
		}
		if name != "" && !strings.EqualFold(c.Name, name) {
			continue
		}
		out = append(out, c)
	}
	return out
}
