package curriculum

// Skill is one curriculum skill code (e.g. "EF06MA01") with its description.
type Skill struct {
	Code        string `yaml:"code" json:"code"`
	Description string `yaml:"description" json:"description"`
}

// SkillSet is the ordered skill list of a discipline at one grade/level, as
// stored in a catalog YAML file.
type SkillSet struct {
	Discipline string  `yaml:"discipline"`
	Grade      string  `yaml:"grade"`
	Skills     []Skill `yaml:"skills"`
}
