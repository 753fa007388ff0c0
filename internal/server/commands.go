package server

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ems3/internal/domain"
)

type CommandStore interface {
	ListQuickCommands() ([]domain.QuickCommand, error)
	SaveQuickCommand(qc domain.QuickCommand) error
	DeleteQuickCommand(name string) error
}

// QuickCommands manages the saved console command templates.
type QuickCommands struct {
	store CommandStore
}

func NewQuickCommands(store CommandStore) *QuickCommands {
	return &QuickCommands{store: store}
}

func (q *QuickCommands) List() ([]domain.QuickCommand, error) {
	return q.store.ListQuickCommands()
}

// Add saves a quick command, replacing any command with the same name.
func (q *QuickCommands) Add(name, template, description string) (domain.QuickCommand, error) {
	qc := domain.QuickCommand{
		Name:        strings.TrimSpace(name),
		Template:    strings.TrimSpace(template),
		Description: strings.TrimSpace(description),
	}
	if qc.Name == "" || qc.Template == "" {
		return domain.QuickCommand{}, errors.New("a quick command needs a name and a command")
	}
	if strings.Count(qc.Template, "{") != strings.Count(qc.Template, "}") {
		return domain.QuickCommand{}, fmt.Errorf("unbalanced braces in %q", qc.Template)
	}
	if err := q.store.SaveQuickCommand(qc); err != nil {
		return domain.QuickCommand{}, err
	}
	return qc, nil
}

func (q *QuickCommands) Remove(name string) error {
	return q.store.DeleteQuickCommand(strings.TrimSpace(name))
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Placeholders lists the names used by a template, in order of first use.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Expand fills every {name} in the template. A placeholder without a
// non-blank value is an error.
func Expand(template string, values map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		v := strings.TrimSpace(values[name])
		if v == "" {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing values for %s", strings.Join(missing, ", "))
	}
	return strings.TrimSpace(out), nil
}
