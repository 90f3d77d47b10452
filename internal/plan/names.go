package plan

import "fmt"

// Stack names are deterministic functions of their identifying fields so
// that repeated runs address the same stacks.

func OrgStackName(orgSlug string) string {
	return fmt.Sprintf("devramps-%s", orgSlug)
}

func PipelineStackName(slug string) string {
	return fmt.Sprintf("devramps-pipeline-%s", slug)
}

func AccountStackName(orgSlug string) string {
	return fmt.Sprintf("devramps-account-%s", orgSlug)
}

func StageStackName(slug, stageName string) string {
	return fmt.Sprintf("devramps-stage-%s-%s", slug, stageName)
}

func ImportStackName(slug, sourceAccountID string) string {
	return fmt.Sprintf("devramps-import-%s-%s", slug, sourceAccountID)
}
