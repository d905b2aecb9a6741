package output

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// SARIF 2.1.0 subset. Only the fields code-scanning backends actually read.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string          `json:"name"`
	Version        string          `json:"version"`
	InformationURI string          `json:"informationUri"`
	Rules          []sarifRuleDesc `json:"rules"`
}

type sarifRuleDesc struct {
	ID               string            `json:"id"`
	ShortDescription sarifText         `json:"shortDescription"`
	Properties       map[string]string `json:"properties,omitempty"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifText       `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

// sarifRenderer emits SARIF 2.1.0 with one rule per vulnerability type.
type sarifRenderer struct{}

// sarifLevel maps severities onto the three SARIF levels.
func sarifLevel(s finding.Severity) string {
	switch s {
	case finding.SeverityCritical, finding.SeverityHigh:
		return "error"
	case finding.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func (sarifRenderer) Render(result *finding.ScanResult) (string, error) {
	ruleSet := make(map[finding.VulnType]sarifRuleDesc)
	results := make([]sarifResult, 0, len(result.Findings))

	for _, f := range result.Findings {
		if _, ok := ruleSet[f.Type]; !ok {
			props := map[string]string{}
			if f.CWE != 0 {
				props["cwe"] = fmt.Sprintf("CWE-%d", f.CWE)
			}
			ruleSet[f.Type] = sarifRuleDesc{
				ID:               string(f.Type),
				ShortDescription: sarifText{Text: f.Title},
				Properties:       props,
			}
		}

		r := sarifResult{
			RuleID:  string(f.Type),
			Level:   sarifLevel(f.Severity),
			Message: sarifText{Text: fmt.Sprintf("%s: %s", f.Title, f.Description)},
		}
		if f.Location != nil && f.Location.File != "" {
			phys := sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: f.Location.File},
			}
			if f.Location.Line > 0 {
				phys.Region = &sarifRegion{
					StartLine:   f.Location.Line,
					StartColumn: f.Location.Column,
				}
			}
			r.Locations = []sarifLocation{{PhysicalLocation: phys}}
		}
		results = append(results, r)
	}

	rules := make([]sarifRuleDesc, 0, len(ruleSet))
	for _, r := range ruleSet {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "mcpscan",
				Version:        result.Version,
				InformationURI: "https://github.com/luckyPipewrench/mcpscan",
				Rules:          rules,
			}},
			Results: results,
		}},
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sarif: %w", err)
	}
	return string(data) + "\n", nil
}
