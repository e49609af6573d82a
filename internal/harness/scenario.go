package harness

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/txtar"
)

// Scenario is one named end-to-end fixture: a set of tapes to assemble,
// which of them run as independently scheduled initial tasks, and the
// console transcript a correct run must produce.
type Scenario struct {
	Name     string
	Tasks    []string
	InitTask string // set as sched.InitProc's target, if non-empty
	Programs map[string]string
	Want     string
}

// LoadScenarios parses a txtar archive whose file paths are named
// "<scenario>/<file>": "<scenario>/tasks" lists the initial task names
// (one per line, in sched.AddTask order), "<scenario>/init" optionally
// names the task that becomes the init process, "<scenario>/want" holds
// the expected console transcript, and "<scenario>/programs/<name>.tape"
// holds one program's tape source.
func LoadScenarios(data []byte) ([]Scenario, error) {
	ar := txtar.Parse(data)

	byName := map[string]*Scenario{}
	var order []string

	for _, f := range ar.Files {
		scenario, rest, ok := strings.Cut(f.Name, "/")
		if !ok {
			return nil, fmt.Errorf("harness: txtar entry %q has no scenario prefix", f.Name)
		}

		s, ok := byName[scenario]
		if !ok {
			s = &Scenario{Name: scenario, Programs: map[string]string{}}
			byName[scenario] = s
			order = append(order, scenario)
		}

		switch {
		case rest == "tasks":
			s.Tasks = splitNonEmptyLines(string(f.Data))
		case rest == "init":
			s.InitTask = strings.TrimSpace(string(f.Data))
		case rest == "want":
			s.Want = string(f.Data)
		case strings.HasPrefix(rest, "programs/") && strings.HasSuffix(rest, ".tape"):
			name := strings.TrimSuffix(strings.TrimPrefix(rest, "programs/"), ".tape")
			s.Programs[name] = string(f.Data)
		default:
			return nil, fmt.Errorf("harness: scenario %q: unrecognized fixture file %q", scenario, rest)
		}
	}

	sort.Strings(order)
	scenarios := make([]Scenario, 0, len(order))
	for _, name := range order {
		scenarios = append(scenarios, *byName[name])
	}
	return scenarios, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
