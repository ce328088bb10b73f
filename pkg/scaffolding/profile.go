package scaffolding

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConsultantProfile describes the advisor persona stamped into every
// enriched conversation's metadata.
type ConsultantProfile struct {
	Name            string   `yaml:"name" json:"name"`
	Credentials     []string `yaml:"credentials" json:"credentials"`
	Firm            string   `yaml:"firm" json:"firm"`
	Specialties     []string `yaml:"specialties" json:"specialties"`
	YearsExperience int      `yaml:"years_experience" json:"years_experience"`
	Approach        string   `yaml:"approach" json:"approach"`
}

// LoadProfile reads a consultant profile from a yaml file, falling back
// to the built-in default when no path is configured.
func LoadProfile(path string) (ConsultantProfile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultProfile(), err
	}
	var profile ConsultantProfile
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return ConsultantProfile{}, err
	}
	if profile.Name == "" {
		return ConsultantProfile{}, fmt.Errorf("consultant profile missing name")
	}
	return profile, nil
}

func DefaultProfile() ConsultantProfile {
	return ConsultantProfile{
		Name:        "Elena Morales",
		Credentials: []string{"CFP"},
		Firm:        "Pathways Financial Planning",
		Specialties: []string{
			"emotional intelligence in financial planning",
			"behavioral finance",
			"life transition planning",
		},
		YearsExperience: 12,
		Approach:        "empathetic, client-centered financial guidance",
	}
}
