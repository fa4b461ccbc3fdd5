package transport

import (
	"fmt"
	"strings"

	"github.com/bookline/task-service/internal/envelope"
)

// Route sends tasks whose name contains Keyword to Queue.
type Route struct {
	Keyword string
	Queue   string
}

// RouteTable resolves the broker queue for a task. Rules are checked in
// order against the task name, first match wins; when nothing matches the
// envelope's queue type names the queue.
type RouteTable struct {
	rules []Route
}

func NewRouteTable(rules []Route) *RouteTable {
	return &RouteTable{rules: rules}
}

// ParseRoutes turns "keyword=queue" strings from configuration into rules,
// preserving order.
func ParseRoutes(specs []string) ([]Route, error) {
	rules := make([]Route, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid route %q, want keyword=queue", spec)
		}
		rules = append(rules, Route{Keyword: parts[0], Queue: parts[1]})
	}
	return rules, nil
}

// Resolve returns the queue name for a task.
func (t *RouteTable) Resolve(taskName string, queueType envelope.QueueType) string {
	lower := strings.ToLower(taskName)
	for _, r := range t.rules {
		if strings.Contains(lower, strings.ToLower(r.Keyword)) {
			return r.Queue
		}
	}
	return string(queueType)
}
