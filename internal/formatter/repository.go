package formatter

import (
	"fmt"
	"strings"
)

type project struct {
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

type commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

type pushEvent struct {
	Project           project  `json:"project"`
	UserName          string   `json:"user_name"`
	Ref               string   `json:"ref"`
	Before            string   `json:"before"`
	CheckoutSHA       string   `json:"checkout_sha"`
	TotalCommitsCount int      `json:"total_commits_count"`
	Commits           []commit `json:"commits"`
}

func renderPush(_ string, payload []byte) (string, error) {
	var e pushEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	if err := need("project", e.Project.PathWithNamespace, "ref", e.Ref); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))
	fmt.Fprintf(&b, "*%s* pushed *%d* new commits to the *%s* branch\n",
		e.UserName, e.TotalCommitsCount, refName(e.Ref))

	for _, c := range e.Commits {
		title, body, _ := strings.Cut(strings.TrimRight(c.Message, " \n"), "\n")
		fmt.Fprintf(&b, "\n%s\n%s\n", link(title, c.URL), body)
	}
	return b.String(), nil
}

func renderTagPush(_ string, payload []byte) (string, error) {
	var e pushEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	if err := need("project", e.Project.PathWithNamespace, "ref", e.Ref); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))
	tag := refName(e.Ref)

	if zeroSHA(e.Before) {
		target := e.Project.WebURL + "/-/commit/" + e.CheckoutSHA
		if len(e.Commits) > 0 && e.Commits[0].URL != "" {
			target = e.Commits[0].URL
		}
		fmt.Fprintf(&b, "*%s* tagged object %s with tag *\"%s\"*\n",
			e.UserName, link(e.CheckoutSHA, target), tag)
	} else {
		fmt.Fprintf(&b, "*%s* removed tag *\"%s\"* from object %s\n",
			e.UserName, tag, link(e.Before, e.Project.WebURL+"/-/commit/"+e.Before))
	}
	return b.String(), nil
}

type refChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
	Ref    string `json:"ref"`
}

type repositoryUpdateEvent struct {
	Project  project     `json:"project"`
	UserName string      `json:"user_name"`
	Changes  []refChange `json:"changes"`
}

func renderRepositoryUpdate(_ string, payload []byte) (string, error) {
	var e repositoryUpdateEvent
	if err := decode(payload, &e); err != nil {
		return "", err
	}
	if err := need("project", e.Project.PathWithNamespace); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(header(e.Project.PathWithNamespace))
	fmt.Fprintf(&b, "*%s* ", e.UserName)
	if len(e.Changes) > 1 {
		b.WriteString("issued multiple changes\n\n")
	}

	for _, c := range e.Changes {
		if c.Ref == "" {
			continue
		}
		name := refName(c.Ref)
		switch typ := refType(c.Ref); typ {
		case "tags":
			// Single tag changes also arrive as tag_push events.
			if len(e.Changes) == 1 {
				continue
			}
			if zeroSHA(c.Before) {
				fmt.Fprintf(&b, "tagged object %s with tag *\"%s\"*\n",
					link(c.After, e.Project.WebURL+"/-/commit/"+c.After), name)
			} else {
				fmt.Fprintf(&b, "removed tag *\"%s\"* from object %s\n",
					name, link(c.Before, e.Project.WebURL+"/-/commit/"+c.Before))
			}
		case "heads":
			switch {
			case zeroSHA(c.Before):
				fmt.Fprintf(&b, "created branch %s\n", link(name, e.Project.WebURL+"/-/tree/"+name))
			case zeroSHA(c.After):
				fmt.Fprintf(&b, "removed branch *\"%s\"*\n", name)
			}
			// Other branch updates carry no detail worth relaying.
		default:
			fmt.Fprintf(&b, "update with unknown ref type \"%s\"\n", typ)
		}
	}
	return b.String(), nil
}
