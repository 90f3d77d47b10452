package models

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Pipeline is the parsed form of a pipeline definition. Parsing the raw
// definition files is owned by the CLI frontend; the engine only consumes
// these records.
type Pipeline struct {
	Slug               string    `json:"slug" yaml:"slug"`
	TargetAccountIDs   []string  `json:"target_account_ids" yaml:"target_account_ids"`
	Stages             []Stage   `json:"stages" yaml:"stages"`
	Steps              []Step    `json:"steps,omitempty" yaml:"steps,omitempty"`
	Artifacts          Artifacts `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	AdditionalPolicies []string  `json:"additional_policies,omitempty" yaml:"additional_policies,omitempty"`
}

type Stage struct {
	Name      string `json:"name" yaml:"name"`
	AccountID string `json:"account_id" yaml:"account_id"`
	Region    string `json:"region" yaml:"region"`
}

type Step struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Artifacts groups the artifacts a pipeline produces or imports.
type Artifacts struct {
	Docker []Artifact `json:"docker,omitempty" yaml:"docker,omitempty"`
	Bundle []Artifact `json:"bundle,omitempty" yaml:"bundle,omitempty"`
}

// Artifact describes a single pipeline artifact. AccountID is set only for
// import-type artifacts sourced from an external account.
type Artifact struct {
	Name      string `json:"name" yaml:"name"`
	AccountID string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
}

// AuthContext carries the authenticated organization and CI/CD account
// identity established by the login flow.
type AuthContext struct {
	OrgSlug       string `json:"org_slug"`
	CICDAccountID string `json:"cicd_account_id"`
	CICDRegion    string `json:"cicd_region"`
}

// ImportSourceAccounts returns the distinct external accounts this pipeline
// imports artifacts from, sorted. Artifacts without an explicit source
// account are local and excluded.
func (p *Pipeline) ImportSourceAccounts() []string {
	seen := map[string]bool{}
	var accounts []string
	for _, a := range slices.Concat(p.Artifacts.Docker, p.Artifacts.Bundle) {
		if a.AccountID == "" || seen[a.AccountID] {
			continue
		}
		seen[a.AccountID] = true
		accounts = append(accounts, a.AccountID)
	}
	slices.Sort(accounts)
	return accounts
}

type pipelineFile struct {
	Pipelines []Pipeline `yaml:"pipelines"`
}

// LoadPipelines reads parsed pipeline records from a YAML file.
func LoadPipelines(path string) ([]Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipelines file: %w", err)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pipelines file %s: %w", path, err)
	}

	for i := range file.Pipelines {
		if file.Pipelines[i].Slug == "" {
			return nil, fmt.Errorf("pipelines file %s: pipeline at index %d is missing a slug", path, i)
		}
	}
	return file.Pipelines, nil
}
