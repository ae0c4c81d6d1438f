package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Difficulty levels for evaluation datasets.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Dataset is a collection of test cases for evaluation.
type Dataset struct {
	Name       string     `json:"name" yaml:"name"`
	Difficulty string     `json:"difficulty" yaml:"difficulty"` // easy, medium, hard
	Tests      []TestCase `json:"tests" yaml:"tests"`
}

// TestCase defines a single evaluation question and what the pipeline is
// expected to do with it.
type TestCase struct {
	Question      string      `json:"question" yaml:"question"`
	ExpectedFacts []string    `json:"expected_facts,omitempty" yaml:"expected_facts,omitempty"` // Facts that should appear in the narrative
	Category      string      `json:"category" yaml:"category"`                                 // listing, funding, trend, comparison, follow-up
	Explanation   string      `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Expect        Expectation `json:"expect" yaml:"expect"`

	// Session groups cases into one conversation: cases sharing a non-empty
	// value are asked in order on the same history.
	Session string `json:"session,omitempty" yaml:"session,omitempty"`
}

// Expectation lists the checks run against the executed query and the
// response. Zero values disable a check.
type Expectation struct {
	// FundingRequired expects ex:hasFunding outside any OPTIONAL.
	FundingRequired bool `json:"funding_required,omitempty" yaml:"funding_required,omitempty"`
	// LocationOptional expects every ex:hasLocation pattern inside OPTIONAL.
	LocationOptional bool `json:"location_optional,omitempty" yaml:"location_optional,omitempty"`
	// IndustryLiteral is a canonical label that must appear as a literal.
	IndustryLiteral string `json:"industry_literal,omitempty" yaml:"industry_literal,omitempty"`
	MinRows         int    `json:"min_rows,omitempty" yaml:"min_rows,omitempty"`
	Comparison      bool   `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Shape           string `json:"shape,omitempty" yaml:"shape,omitempty"` // comparison, trend, standard, fallback
}

// LoadDataset reads a dataset from a YAML or JSON file.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Tests) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no tests", path)
	}
	for i, tc := range ds.Tests {
		if tc.Question == "" {
			return Dataset{}, fmt.Errorf("dataset %s: test %d has no question", path, i+1)
		}
	}
	if ds.Name == "" {
		ds.Name = path
	}
	return ds, nil
}

// StartupDataset returns the built-in cases over Swiss startup funding data.
func StartupDataset() Dataset {
	return Dataset{
		Name:       "Swiss Startup Funding",
		Difficulty: DifficultyMedium,
		Tests: []TestCase{
			{
				Question: "List all cleantech startups and their funding rounds.",
				Category: "funding",
				Expect: Expectation{
					FundingRequired: true,
					IndustryLiteral: "cleantech",
					MinRows:         1,
					Shape:           "standard",
				},
				Explanation: "Industry phrase maps to the canonical literal; funding is required.",
			},
			{
				Question: "Which medical technology companies in Zurich raised money?",
				Category: "funding",
				Expect: Expectation{
					FundingRequired:  true,
					LocationOptional: true,
					IndustryLiteral:  "medtech",
				},
				Explanation: "Location stays optional so startups without a city still match.",
			},
			{
				Question: "What is the funding trend for fintech startups over time?",
				Category: "trend",
				Expect: Expectation{
					FundingRequired: true,
					IndustryLiteral: "ICT (fintech)",
					Shape:           "trend",
				},
			},
			{
				Question: "Show the biotech startups.",
				Category: "listing",
				Expect: Expectation{
					IndustryLiteral:  "biotech",
					LocationOptional: true,
				},
			},
			{
				Question: "Which startups received funding of more than 10 million in a single round?",
				Category: "funding",
				Expect: Expectation{
					FundingRequired: true,
				},
			},
			{
				Question: "Compare the funding history of 'Climeworks' and 'Sophia Genetics'.",
				Category: "comparison",
				Expect: Expectation{
					FundingRequired: true,
					Comparison:      true,
					Shape:           "comparison",
				},
				ExpectedFacts: []string{"Climeworks", "Sophia Genetics"},
			},
			{
				Question: "Which life sciences startups were founded after 2015?",
				Category: "listing",
				Expect: Expectation{
					IndustryLiteral: "Life-Sciences",
				},
			},
			{
				Question: "What were the largest funding rounds in healthcare?",
				Category: "follow-up",
				Session:  "healthcare",
				Expect: Expectation{
					FundingRequired: true,
					IndustryLiteral: "healthcare IT",
				},
			},
			{
				Question: "And which of those were series B or later?",
				Category: "follow-up",
				Session:  "healthcare",
				Expect: Expectation{
					LocationOptional: true,
				},
			},
		},
	}
}
