package workflow

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron"
)

// deniedExpressionSubstrings is the code-injection deny list checked against
// every user-authored expression (spec.md §4.5 Security checks).
var deniedExpressionSubstrings = []string{
	"eval(", "exec(", "__import__", "os.system", "subprocess", "`", "${jndi:",
}

// Validate runs every independently-reportable check in spec.md §4.5 and
// returns a deterministic report: the same input always produces the same
// result.
func Validate(def Definition, limits Limits) Report {
	report := Report{IsValid: true}

	checkComplexity(def, limits, &report)
	nodeByID := checkStructural(def, &report)
	checkReachability(def, nodeByID, limits, &report)
	checkNodeConfig(def, &report)
	checkSecurity(def, &report)

	return report
}

func checkComplexity(def Definition, limits Limits, report *Report) {
	if len(def.Nodes) > limits.MaxNodes {
		report.addError(fmt.Sprintf("node count %d exceeds limit %d", len(def.Nodes), limits.MaxNodes))
	}
	if len(def.Connections) > limits.MaxConnections {
		report.addError(fmt.Sprintf("connection count %d exceeds limit %d", len(def.Connections), limits.MaxConnections))
	}
}

// checkStructural verifies unique node ids and that every connection
// references existing nodes/ports with compatible direction and data type.
func checkStructural(def Definition, report *Report) map[string]*Node {
	byID := make(map[string]*Node, len(def.Nodes))
	seen := make(map[string]bool, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if seen[n.ID] {
			report.addError(fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		seen[n.ID] = true
		byID[n.ID] = n
	}

	for _, c := range def.Connections {
		from, ok := byID[c.FromNode]
		if !ok {
			report.addError(fmt.Sprintf("connection %q references unknown source node %q", c.ID, c.FromNode))
			continue
		}
		to, ok := byID[c.ToNode]
		if !ok {
			report.addError(fmt.Sprintf("connection %q references unknown destination node %q", c.ID, c.ToNode))
			continue
		}

		fromPort := findPort(from, c.FromPort, PortOutput)
		if fromPort == nil {
			report.addError(fmt.Sprintf("connection %q: node %q has no output port %q", c.ID, from.ID, c.FromPort))
			continue
		}
		toPort := findPort(to, c.ToPort, PortInput)
		if toPort == nil {
			report.addError(fmt.Sprintf("connection %q: node %q has no input port %q", c.ID, to.ID, c.ToPort))
			continue
		}
		if fromPort.DataType != toPort.DataType {
			report.addError(fmt.Sprintf("connection %q: data type mismatch (%s -> %s)", c.ID, fromPort.DataType, toPort.DataType))
		}
	}

	return byID
}

func findPort(n *Node, name string, dir PortDirection) *Port {
	for i := range n.Ports {
		if n.Ports[i].Name == name && n.Ports[i].Direction == dir {
			return &n.Ports[i]
		}
	}
	return nil
}

// checkReachability requires at least one trigger node, rejects cycles, and
// flags nodes unreachable from any trigger.
func checkReachability(def Definition, byID map[string]*Node, limits Limits, report *Report) {
	var triggers []string
	for _, n := range def.Nodes {
		if n.Kind == NodeTrigger {
			triggers = append(triggers, n.ID)
		}
	}
	if len(triggers) == 0 {
		report.addError("workflow has no trigger node")
		return
	}

	adj := make(map[string][]string)
	for _, c := range def.Connections {
		if _, ok := byID[c.FromNode]; !ok {
			continue
		}
		if _, ok := byID[c.ToNode]; !ok {
			continue
		}
		adj[c.FromNode] = append(adj[c.FromNode], c.ToNode)
	}

	if cyclePath := detectCycle(def, adj); cyclePath != "" {
		report.addError("cycle detected: " + cyclePath)
	}

	reachable := make(map[string]bool)
	maxDepthSeen := 0
	for _, t := range triggers {
		depth := bfsReachable(t, adj, reachable)
		if depth > maxDepthSeen {
			maxDepthSeen = depth
		}
	}
	if maxDepthSeen > limits.MaxDepth {
		report.addError(fmt.Sprintf("graph depth %d exceeds limit %d", maxDepthSeen, limits.MaxDepth))
	}

	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			report.addWarning(fmt.Sprintf("node %q is unreachable from any trigger", n.ID))
		}
	}
}

// detectCycle runs DFS with a recursion-stack marker over every node,
// returning a human-readable path description on the first cycle found.
func detectCycle(def Definition, adj map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Nodes))
	for _, n := range def.Nodes {
		color[n.ID] = white
	}

	var path []string
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		path = append(path, id)
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return strings.Join(append(path, next), " -> ")
			case white:
				if found := visit(next); found != "" {
					return found
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return ""
	}

	for _, n := range def.Nodes {
		if color[n.ID] == white {
			if found := visit(n.ID); found != "" {
				return found
			}
		}
	}
	return ""
}

func bfsReachable(start string, adj map[string][]string, reachable map[string]bool) int {
	reachable[start] = true
	queue := []string{start}
	depth := map[string]int{start: 0}
	maxDepth := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if reachable[next] {
				continue
			}
			reachable[next] = true
			depth[next] = depth[cur] + 1
			if depth[next] > maxDepth {
				maxDepth = depth[next]
			}
			queue = append(queue, next)
		}
	}
	return maxDepth
}

// checkNodeConfig runs the per-kind validators spec.md §4.5 names.
func checkNodeConfig(def Definition, report *Report) {
	for _, n := range def.Nodes {
		switch n.Kind {
		case NodeWebhook:
			validateWebhookNode(n, report)
		case NodeSchedule:
			validateScheduleNode(n, report)
		case NodeTransform:
			validateTransformNode(n, report)
		case NodeCondition:
			validateConditionNode(n, report)
		case NodeLoop:
			validateLoopNode(n, report)
		}
	}
}

func validateWebhookNode(n Node, report *Report) {
	raw, _ := n.Config["url"].(string)
	if raw == "" {
		report.addNodeError(n.ID, "webhook node missing url")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		report.addNodeError(n.ID, "webhook node url is not well-formed")
	}
}

func validateScheduleNode(n Node, report *Report) {
	expr, _ := n.Config["cron"].(string)
	if expr == "" {
		report.addNodeError(n.ID, "schedule node missing cron expression")
		return
	}
	if _, err := cron.Parse(expr); err != nil {
		report.addNodeError(n.ID, "schedule node cron expression is not parseable: "+err.Error())
	}
}

func validateTransformNode(n Node, report *Report) {
	expr, _ := n.Config["expression"].(string)
	for _, bad := range deniedExpressionSubstrings {
		if strings.Contains(expr, bad) {
			report.addNodeError(n.ID, "transform node expression contains forbidden substring: "+bad)
			return
		}
	}
}

func validateConditionNode(n Node, report *Report) {
	rules, _ := n.Config["rules"].([]any)
	if len(rules) == 0 {
		report.addNodeError(n.ID, "condition node requires at least one rule")
	}
}

func validateLoopNode(n Node, report *Report) {
	binding, _ := n.Config["iterable"].(string)
	if strings.TrimSpace(binding) == "" {
		report.addNodeError(n.ID, "loop node missing iterable binding")
	}
}

// checkSecurity matches every user-authored expression field against the
// deny list, independent of per-kind structural checks.
func checkSecurity(def Definition, report *Report) {
	for _, n := range def.Nodes {
		for field, v := range n.Config {
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, bad := range deniedExpressionSubstrings {
				if strings.Contains(s, bad) {
					report.addNodeError(n.ID, fmt.Sprintf("field %q contains forbidden pattern %q", field, bad))
				}
			}
		}
	}
}
