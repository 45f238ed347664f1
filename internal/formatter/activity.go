package formatter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type user struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type label struct {
	Title string `json:"title"`
}

type pathRef struct {
	PathWithNamespace string `json:"path_with_namespace"`
}

type objectAttributes struct {
	ID              int64    `json:"id"`
	IID             int64    `json:"iid"`
	Action          string   `json:"action"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Description     string   `json:"description"`
	SourceBranch    string   `json:"source_branch"`
	TargetBranch    string   `json:"target_branch"`
	SourceProjectID int64    `json:"source_project_id"`
	TargetProjectID int64    `json:"target_project_id"`
	Source          pathRef  `json:"source"`
	NoteableType    string   `json:"noteable_type"`
	Note            string   `json:"note"`
	Ref             string   `json:"ref"`
	Status          string   `json:"status"`
	Duration        *float64 `json:"duration"`
}

type trackerEvent struct {
	Project    project                    `json:"project"`
	User       user                       `json:"user"`
	Attributes objectAttributes           `json:"object_attributes"`
	Labels     []label                    `json:"labels"`
	Assignees  []user                     `json:"assignees"`
	Changes    map[string]json.RawMessage `json:"changes"`
}

func (e *trackerEvent) validate() error {
	return need(
		"project", e.Project.PathWithNamespace,
		"user", e.User.Name,
		"object_attributes.url", e.Attributes.URL,
	)
}

func (e *trackerEvent) action() string {
	if e.Attributes.Action == "" {
		return "open"
	}
	return e.Attributes.Action
}

// changes lists the tracked fields an update touched.
func (e *trackerEvent) changes(b *strings.Builder) {
	if _, ok := e.Changes["assignees"]; ok {
		b.WriteString("• Assignees were changed\n")
	}
	if _, ok := e.Changes["labels"]; ok {
		b.WriteString("• Labels were changed\n")
	}
	if _, ok := e.Changes["discussion_locked"]; ok {
		b.WriteString("• The discussion was locked\n")
	}
}

func (e *trackerEvent) footer(b *strings.Builder) {
	labels := make([]string, len(e.Labels))
	for i, l := range e.Labels {
		labels[i] = l.Title
	}
	assignees := make([]string, len(e.Assignees))
	for i, a := range e.Assignees {
		assignees[i] = a.Name
	}
	fmt.Fprintf(b, "*labels:* %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(b, "*assignees:* %s\n", strings.Join(assignees, ", "))
}

func renderMergeRequest(_ string, payload []byte) (string, error) {
	var e trackerEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	if err := e.validate(); err != nil {
		return "", err
	}

	a := e.Attributes
	source := a.SourceBranch
	if a.SourceProjectID != a.TargetProjectID && a.Source.PathWithNamespace != "" {
		source = a.Source.PathWithNamespace + ":" + a.SourceBranch
	}

	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))

	action := e.action()
	switch action {
	case "open":
		fmt.Fprintf(&b, "*%s* requested to merge from *%s* into *%s*\n", e.User.Name, source, a.TargetBranch)
	case "reopen", "update", "close", "merge", "approved", "unapproved":
		fmt.Fprintf(&b, "*%s* %s the merge request *%d* from *%s* into *%s*\n",
			e.User.Name, pastTense(action), a.IID, source, a.TargetBranch)
		if action == "update" {
			e.changes(&b)
		}
	default:
		return "", fmt.Errorf("%w: merge request action %q", ErrUnsupported, action)
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", link(a.Title, a.URL), a.Description)
	if action != "close" && action != "merge" {
		e.footer(&b)
	}
	return b.String(), nil
}

func renderIssue(_ string, payload []byte) (string, error) {
	var e trackerEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	if err := e.validate(); err != nil {
		return "", err
	}

	a := e.Attributes
	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))

	action := e.action()
	switch action {
	case "open", "reopen", "update", "close":
		fmt.Fprintf(&b, "*%s* %s issue *%d*\n", e.User.Name, pastTense(action), a.IID)
		if action == "update" {
			e.changes(&b)
		}
	default:
		return "", fmt.Errorf("%w: issue action %q", ErrUnsupported, action)
	}

	fmt.Fprintf(&b, "\n%s\n%s\n\n", link(a.Title, a.URL), a.Description)
	if action != "close" {
		e.footer(&b)
	}
	return b.String(), nil
}

func pastTense(action string) string {
	switch action {
	case "open":
		return "opened"
	case "reopen":
		return "reopened"
	case "close":
		return "closed"
	case "merge":
		return "merged"
	case "approved", "unapproved":
		return action
	}
	return strings.TrimSuffix(action, "e") + "ed"
}

type noteEvent struct {
	Project      project          `json:"project"`
	User         user             `json:"user"`
	Attributes   objectAttributes `json:"object_attributes"`
	Commit       commit           `json:"commit"`
	MergeRequest objectAttributes `json:"merge_request"`
	Issue        objectAttributes `json:"issue"`
	Snippet      objectAttributes `json:"snippet"`
}

func renderNote(_ string, payload []byte) (string, error) {
	var e noteEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	a := e.Attributes
	if err := need("project", e.Project.PathWithNamespace, "user", e.User.Name, "object_attributes.url", a.URL); err != nil {
		return "", err
	}

	var target string
	switch a.NoteableType {
	case "Commit":
		target = "commit " + link(e.Commit.ID, e.Commit.URL)
	case "MergeRequest":
		target = "Merge Request " + link(fmt.Sprint(e.MergeRequest.IID), e.MergeRequest.URL)
	case "Issue":
		target = "issue " + link(fmt.Sprint(e.Issue.IID), e.Issue.URL)
	case "Snippet":
		snippetURL, _, _ := strings.Cut(a.URL, "#")
		target = "code snippet " + link(fmt.Sprint(e.Snippet.ID), snippetURL)
	default:
		return "", fmt.Errorf("%w: noteable type %q", ErrUnsupported, a.NoteableType)
	}

	return fmt.Sprintf("%s%s %s on %s\n\n%s",
		header(e.Project.PathWithNamespace), e.User.Name, link("commented", a.URL), target, a.Note), nil
}

type wikiEvent struct {
	Project    project          `json:"project"`
	User       user             `json:"user"`
	Attributes objectAttributes `json:"object_attributes"`
}

func renderWikiPage(_ string, payload []byte) (string, error) {
	var e wikiEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	a := e.Attributes
	if err := need("project", e.Project.PathWithNamespace, "user", e.User.Name, "object_attributes.url", a.URL); err != nil {
		return "", err
	}

	action := a.Action
	if action == "" {
		action = "create"
	}
	was := ""
	if action == "delete" {
		was = "(was) "
	}
	return fmt.Sprintf("%s*%s* %sd a Wiki entry\n\n%s%s",
		header(e.Project.PathWithNamespace), e.User.Name, action, was, link(a.Title, a.URL)), nil
}

type pipelineEvent struct {
	Project    project          `json:"project"`
	User       user             `json:"user"`
	Attributes objectAttributes `json:"object_attributes"`
	Commit     commit           `json:"commit"`
}

var pipelineStatus = map[string]string{
	"success":  "✅ passed",
	"failed":   "❌ failed",
	"canceled": "⛔ was canceled",
	"running":  "🏃 is running",
	"pending":  "⏳ is pending",
	"skipped":  "⏭ was skipped",
	"manual":   "✋ is waiting for a manual action",
}

func renderPipeline(_ string, payload []byte) (string, error) {
	var e pipelineEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	a := e.Attributes
	if err := need("project", e.Project.PathWithNamespace, "object_attributes.status", a.Status); err != nil {
		return "", err
	}

	status, ok := pipelineStatus[a.Status]
	if !ok {
		status = a.Status
	}
	id := fmt.Sprintf("#%d", a.ID)
	if a.URL != "" {
		id = link(id, a.URL)
	} else if e.Project.WebURL != "" {
		id = link(id, fmt.Sprintf("%s/-/pipelines/%d", e.Project.WebURL, a.ID))
	}

	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))
	fmt.Fprintf(&b, "Pipeline %s on *%s* %s", id, a.Ref, status)
	if a.Duration != nil && *a.Duration > 0 {
		fmt.Fprintf(&b, " after %s", time.Duration(*a.Duration*float64(time.Second)).Round(time.Second))
	}
	b.WriteString("\n")
	if e.User.Name != "" {
		fmt.Fprintf(&b, "triggered by *%s*\n", e.User.Name)
	}
	if e.Commit.ID != "" {
		title, _, _ := strings.Cut(strings.TrimSpace(e.Commit.Message), "\n")
		fmt.Fprintf(&b, "\n%s %s\n", link(shortSHA(e.Commit.ID), e.Commit.URL), title)
	}
	return b.String(), nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
