package formatter

import (
	"fmt"
	"strings"
)

type systemEvent struct {
	EventName            string  `json:"event_name"`
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Username             string  `json:"username"`
	OldUsername          string  `json:"old_username"`
	UserName             string  `json:"user_name"`
	FullPath             string  `json:"full_path"`
	OldFullPath          string  `json:"old_full_path"`
	GroupPath            string  `json:"group_path"`
	GroupAccess          string  `json:"group_access"`
	Key                  string  `json:"key"`
	Path                 string  `json:"path"`
	PathWithNamespace    string  `json:"path_with_namespace"`
	OldPathWithNamespace string  `json:"old_path_with_namespace"`
	ProjectVisibility    string  `json:"project_visibility"`
	Owners               []owner `json:"owners"`
}

type owner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func decodeSystem(kind string, payload []byte) (*systemEvent, error) {
	var e systemEvent
	if err := decode(payload, &e); err != nil {
		return nil, err
	}
	if e.EventName == "" {
		e.EventName = kind
	}
	return &e, nil
}

func unsupported(action string) error {
	return fmt.Errorf("%w: event %q", ErrUnsupported, action)
}

func renderGroup(kind string, payload []byte) (string, error) {
	e, err := decodeSystem(kind, payload)
	if err != nil {
		return "", err
	}
	if err := need("full_path", e.FullPath); err != nil {
		return "", err
	}

	switch e.EventName {
	case "group_create":
		return fmt.Sprintf("Group *\"%s\"* has been created", e.FullPath), nil
	case "group_rename":
		return fmt.Sprintf("Group slug *\"%s\"* has been renamed to *\"%s\"*", e.OldFullPath, e.FullPath), nil
	case "group_destroy":
		return fmt.Sprintf("Group *\"%s\"* has been deleted", e.FullPath), nil
	}
	return "", unsupported(e.EventName)
}

func renderUser(kind string, payload []byte) (string, error) {
	e, err := decodeSystem(kind, payload)
	if err != nil {
		return "", err
	}

	switch e.EventName {
	case "user_create":
		return fmt.Sprintf("User *%s* has been created\n\nFull name: %s\nEmail: %s", e.Username, e.Name, e.Email), nil
	case "user_rename":
		return fmt.Sprintf("User *%s* has been renamed to *%s*", e.OldUsername, e.Username), nil
	case "user_destroy":
		return fmt.Sprintf("User *%s* has been deleted", e.Username), nil
	case "user_add_to_group":
		return fmt.Sprintf("User *%s* has been added to group *%s* with %s access", e.UserName, e.GroupPath, e.GroupAccess), nil
	case "user_remove_from_group":
		return fmt.Sprintf("User *%s* has been removed from group *%s* - access was %s", e.UserName, e.GroupPath, e.GroupAccess), nil
	case "user_update_for_group":
		return fmt.Sprintf("User *%s* has been updated for group *%s* - access is %s", e.UserName, e.GroupPath, e.GroupAccess), nil
	}
	return "", unsupported(e.EventName)
}

func renderKey(kind string, payload []byte) (string, error) {
	e, err := decodeSystem(kind, payload)
	if err != nil {
		return "", err
	}
	if err := need("username", e.Username); err != nil {
		return "", err
	}

	switch e.EventName {
	case "key_create":
		keyType, _, _ := strings.Cut(strings.TrimPrefix(e.Key, "ssh-"), " ")
		return fmt.Sprintf("*%s* created an SSH key with type %s", e.Username, keyType), nil
	case "key_destroy":
		return fmt.Sprintf("*%s* removed an SSH key", e.Username), nil
	}
	return "", unsupported(e.EventName)
}

func namespaceOf(path string) string {
	ns, _, _ := strings.Cut(path, "/")
	return ns
}

func renderProject(kind string, payload []byte) (string, error) {
	e, err := decodeSystem(kind, payload)
	if err != nil {
		return "", err
	}
	if err := need("path_with_namespace", e.PathWithNamespace, "name", e.Name); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(header(namespaceOf(e.PathWithNamespace)))

	switch e.EventName {
	case "project_create", "project_update":
		verb := strings.TrimPrefix(e.EventName, "project_") + "d"
		fmt.Fprintf(&b, "Project *%s* has been %s\n\npath: %s\nvisibility: %s\nowners:\n",
			e.Name, verb, e.PathWithNamespace, e.ProjectVisibility)
		for _, o := range e.Owners {
			b.WriteString(o.Name)
			if o.Email != "" {
				b.WriteString(" " + o.Email)
			}
			b.WriteString("\n")
		}
	case "project_rename":
		old := e.OldPathWithNamespace[strings.LastIndexByte(e.OldPathWithNamespace, '/')+1:]
		fmt.Fprintf(&b, "Project *%s* path *%s* has been renamed to *%s*\n", e.Name, old, e.Path)
	case "project_transfer":
		fmt.Fprintf(&b, "Project *%s* has been transferred from *%s*\n\nold path: %s\nnew path: %s",
			e.Name, namespaceOf(e.OldPathWithNamespace), e.OldPathWithNamespace, e.PathWithNamespace)
	case "project_destroy":
		fmt.Fprintf(&b, "Project *%s* has been removed\n\npath was: %s\n", e.Name, e.PathWithNamespace)
	default:
		return "", unsupported(e.EventName)
	}
	return b.String(), nil
}
