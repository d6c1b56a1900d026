// Package forge supplements C1 with repository-archive and CI-pipeline
// inspection beyond plain PR/review/commit/release collection: archive
// download for release-note/diff display, and GitLab pipeline-job status
// that helps disambiguate an ambiguous release-environment
// classification. Neither operation sits on the critical path of any
// DORA computation — they are enrichments only.
package forge

import (
	"fmt"
	"io"

	"code.gitea.io/sdk/gitea"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// ArchiveRepository downloads a tar.gz source archive for ref from a
// Gitea instance and returns its bytes, for release-note diffing in the
// dashboard's release detail view.
func ArchiveRepository(baseURL, token, owner, repo, ref string) ([]byte, error) {
	client, err := gitea.NewClient(baseURL, gitea.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("gitea client: %w", err)
	}
	reader, resp, err := client.GetArchiveReader(owner, repo, ref, gitea.TarGZArchive)
	if err != nil {
		return nil, fmt.Errorf("archive reader: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(reader)
}

// PipelineJob is a reduced view of a GitLab CI job, used only to
// supplement release-environment classification confidence when tag
// metadata alone is ambiguous.
type PipelineJob struct {
	ID       int
	Name     string
	Status   string
	Stage    string
	Ref      string
	Pipeline int
}

// ListPipelineJobs lists every job across every pipeline run against
// tagName, in project projectID on the GitLab instance at baseURL.
func ListPipelineJobs(baseURL, token, projectID, tagName string) ([]PipelineJob, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}

	ref := tagName
	pipelines, _, err := client.Pipelines.ListProjectPipelines(projectID, &gitlab.ListProjectPipelinesOptions{Ref: &ref})
	if err != nil {
		return nil, fmt.Errorf("list pipelines for tag %q: %w", tagName, err)
	}
	if len(pipelines) == 0 {
		return nil, nil
	}

	var jobs []PipelineJob
	for _, p := range pipelines {
		pjobs, _, err := client.Jobs.ListPipelineJobs(projectID, p.ID, &gitlab.ListJobsOptions{})
		if err != nil {
			continue
		}
		for _, j := range pjobs {
			jobs = append(jobs, PipelineJob{ID: j.ID, Name: j.Name, Status: j.Status, Stage: j.Stage, Ref: j.Ref, Pipeline: p.ID})
		}
	}
	return jobs, nil
}
