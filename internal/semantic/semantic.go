// Package semantic runs AST-level analysis over source files using
// tree-sitter grammars. It complements the regex detectors: instead of
// matching text, it inspects call expressions and assignments, so string
// concatenation split across tokens or unusual formatting does not hide a
// dangerous call.
package semantic

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// Languages are immutable and safe to share; parsers are not, so each Scan
// builds its own.
var languages = map[string]*sitter.Language{
	".py":  python.GetLanguage(),
	".js":  javascript.GetLanguage(),
	".mjs": javascript.GetLanguage(),
	".cjs": javascript.GetLanguage(),
	".ts":  typescript.GetLanguage(),
	".go":  golang.GetLanguage(),
}

// Engine is the AST-based detector. The zero value is usable.
type Engine struct{}

// New returns a semantic analysis engine.
func New() *Engine { return &Engine{} }

// Name implements the detector contract.
func (e *Engine) Name() string { return "semantic" }

// Scan parses the file with the grammar matching its extension and walks the
// tree. Files with an unsupported extension, or files the grammar cannot
// parse, produce no findings and no error.
func (e *Engine) Scan(content, filePath string) ([]finding.Finding, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	lang, ok := languages[ext]
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	src := []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, nil
	}
	defer tree.Close()

	a := &analysis{src: src, filePath: filePath}
	switch ext {
	case ".py":
		a.walkPython(tree.RootNode())
		a.reportTaint()
	case ".js", ".mjs", ".cjs", ".ts":
		a.walkJS(tree.RootNode())
	case ".go":
		a.walkGo(tree.RootNode())
	}
	return a.findings, nil
}

type analysis struct {
	src      []byte
	filePath string
	findings []finding.Finding

	// taint bookkeeping, python only
	sourceLines []int
	sinkLines   []int
}

func (a *analysis) add(id string, vulnType finding.VulnType, sev finding.Severity, title, desc string, node *sitter.Node, confidence float64, cwe int) {
	line := int(node.StartPoint().Row) + 1
	a.findings = append(a.findings, finding.Finding{
		ID:          id,
		Type:        vulnType,
		Severity:    sev,
		Title:       title,
		Description: desc,
		Location: &finding.Location{
			File:   a.filePath,
			Line:   line,
			Column: int(node.StartPoint().Column) + 1,
		},
		Impact:      "Untrusted input reaching this construct can let a caller alter the operation performed.",
		Remediation: "Use a safe API: parameterized queries, argument vectors instead of shell strings, and path validation against a fixed base.",
		Evidence: &finding.Evidence{
			Snippet: snippet(node, a.src),
		},
		Confidence: confidence,
		CWE:        cwe,
	})
}

func snippet(node *sitter.Node, src []byte) string {
	s := node.Content(src)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return strings.TrimSpace(s)
}

// walk visits every node depth-first.
func walk(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), visit)
	}
}

// containsType reports whether the subtree holds a node of any listed type.
func containsType(node *sitter.Node, types ...string) bool {
	found := false
	walk(node, func(n *sitter.Node) {
		for _, t := range types {
			if n.Type() == t {
				found = true
			}
		}
	})
	return found
}

func lineOf(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// ---- Python ----

var pythonCommandSinks = map[string]bool{
	"os.system": true,
	"os.popen":  true,
	"eval":      true,
	"exec":      true,
}

func (a *analysis) walkPython(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "call":
			a.pythonCall(n)
		case "assignment":
			a.pythonAssignment(n)
		}
	})
}

func (a *analysis) pythonCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := fn.Content(a.src)
	args := n.ChildByFieldName("arguments")
	line := lineOf(n)

	switch {
	case pythonCommandSinks[name]:
		a.sinkLines = append(a.sinkLines, line)
		if args != nil && containsType(args, "binary_operator", "identifier", "call", "interpolation") {
			a.add(fmt.Sprintf("SEM-CMD-%d", line), finding.TypeCommandInjection,
				finding.SeverityCritical, "Command execution with dynamic argument",
				name+" called with a dynamically built argument", n, 0.85, 78)
		}
	case name == "pickle.loads" || name == "pickle.load":
		a.add(fmt.Sprintf("SEM-DESER-%d", line), finding.TypeUnsafeDeserialization,
			finding.SeverityCritical, "Unsafe pickle deserialization",
			name+" deserializes arbitrary objects and can execute code", n, 0.95, 502)
	case name == "open":
		if args != nil && containsType(args, "binary_operator", "identifier") {
			a.add(fmt.Sprintf("SEM-PATH-%d", line), finding.TypePathTraversal,
				finding.SeverityHigh, "File open with dynamic path",
				"open called with a path built from variables", n, 0.70, 22)
		}
	case strings.HasSuffix(name, ".execute"):
		if args != nil && a.pythonDynamicSQL(args) {
			a.add(fmt.Sprintf("SEM-SQL-%d", line), finding.TypeSQLInjection,
				finding.SeverityCritical, "SQL query built from dynamic values",
				name+" called with an interpolated or concatenated query", n, 0.80, 89)
		}
	}
}

// pythonDynamicSQL is true when the execute argument is a concatenation or an
// f-string with interpolation.
func (a *analysis) pythonDynamicSQL(args *sitter.Node) bool {
	if containsType(args, "binary_operator") {
		return true
	}
	dynamic := false
	walk(args, func(n *sitter.Node) {
		if n.Type() == "interpolation" {
			dynamic = true
		}
	})
	return dynamic
}

// pythonAssignment records taint sources: names assigned from request
// attributes or raw input.
func (a *analysis) pythonAssignment(n *sitter.Node) {
	right := n.ChildByFieldName("right")
	if right == nil {
		return
	}
	text := right.Content(a.src)
	if strings.HasPrefix(text, "request.") || strings.HasPrefix(text, "input(") {
		a.sourceLines = append(a.sourceLines, lineOf(n))
	}
}

// reportTaint emits a single finding when a file holds both an untrusted
// source and a command sink. Reachability between them is not traced yet;
// co-occurrence in one file is treated as reachable.
// TODO: replace co-occurrence with def-use tracking through assignments.
func (a *analysis) reportTaint() {
	if len(a.sourceLines) == 0 || len(a.sinkLines) == 0 {
		return
	}
	a.findings = append(a.findings, finding.Finding{
		ID:          "SEM-TAINT",
		Type:        finding.TypeTaintedDataFlow,
		Severity:    finding.SeverityCritical,
		Title:       "Untrusted input may reach a command sink",
		Description: fmt.Sprintf("A value from request input (line %d) and a command execution sink (line %d) appear in the same file", a.sourceLines[0], a.sinkLines[0]),
		Location: &finding.Location{
			File: a.filePath,
			Line: a.sinkLines[0],
		},
		Impact:      "If the request value flows into the sink, a caller can execute arbitrary commands.",
		Remediation: "Validate and constrain request input before it reaches any execution or evaluation call.",
		Evidence: &finding.Evidence{
			Context: map[string]any{
				"source_line": a.sourceLines[0],
				"sink_line":   a.sinkLines[0],
			},
		},
		Confidence: 0.75,
		CWE:        94,
	})
}

// ---- JavaScript / TypeScript ----

func (a *analysis) walkJS(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "call_expression":
			a.jsCall(n)
		case "assignment_expression":
			a.jsAssignment(n)
		}
	})
}

func (a *analysis) jsCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := fn.Content(a.src)
	line := lineOf(n)
	if name == "exec" || name == "eval" || strings.HasSuffix(name, ".exec") || strings.HasSuffix(name, ".execSync") {
		args := n.ChildByFieldName("arguments")
		if args != nil && containsType(args, "binary_expression", "identifier", "template_string") {
			a.add(fmt.Sprintf("SEM-CMD-%d", line), finding.TypeCommandInjection,
				finding.SeverityCritical, "Command execution with dynamic argument",
				name+" called with a dynamically built argument", n, 0.85, 78)
		}
	}
}

func (a *analysis) jsAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "member_expression" {
		return
	}
	if !strings.HasSuffix(left.Content(a.src), ".innerHTML") {
		return
	}
	right := n.ChildByFieldName("right")
	if right == nil || right.Type() == "string" {
		return
	}
	line := lineOf(n)
	a.add(fmt.Sprintf("SEM-XSS-%d", line), finding.TypeXSS,
		finding.SeverityHigh, "innerHTML assigned from dynamic value",
		"Assigning non-literal content to innerHTML renders it as markup", n, 0.75, 79)
}

// ---- Go ----

func (a *analysis) walkGo(root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		if n.Type() != "call_expression" {
			return
		}
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		name := fn.Content(a.src)
		line := lineOf(n)
		args := n.ChildByFieldName("arguments")

		switch {
		case name == "exec.Command" || name == "exec.CommandContext":
			if args != nil && containsType(args, "binary_expression", "identifier") {
				a.add(fmt.Sprintf("SEM-CMD-%d", line), finding.TypeCommandInjection,
					finding.SeverityHigh, "Command execution with dynamic argument",
					name+" called with a dynamically built argument", n, 0.70, 78)
			}
		case strings.HasSuffix(name, ".Query") || strings.HasSuffix(name, ".Exec") || strings.HasSuffix(name, ".QueryRow"):
			if args != nil && containsType(args, "binary_expression") {
				a.add(fmt.Sprintf("SEM-SQL-%d", line), finding.TypeSQLInjection,
					finding.SeverityCritical, "SQL query built by string concatenation",
					name+" called with a concatenated query string", n, 0.85, 89)
			}
		}
	})
}
