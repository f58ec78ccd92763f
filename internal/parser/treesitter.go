package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// TreeSitter extracts top-level declarations from a tree-sitter syntax tree.
//
// In strict mode any syntax error in the tree fails the strategy so the
// ladder can try a different grammar. In permissive mode error nodes are
// skipped and whatever parsed cleanly is kept.
type TreeSitter struct {
	name     string
	language *sitter.Language
	strict   bool
}

// NewTreeSitter creates a tree-sitter strategy for the given grammar
func NewTreeSitter(name string, language *sitter.Language, strict bool) *TreeSitter {
	return &TreeSitter{
		name:     name,
		language: language,
		strict:   strict,
	}
}

func (t *TreeSitter) Name() string {
	if t.strict {
		return t.name + "/strict"
	}
	return t.name + "/permissive"
}

func (t *TreeSitter) TryExtract(ctx context.Context, content []byte, path string) ([]types.CodeChunk, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(t.language)

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree produced", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse %s: empty tree", path)
	}
	if t.strict && root.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, path)
	}

	var chunks []types.CodeChunk
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		node := root.NamedChild(i)
		if node == nil || node.Type() == "ERROR" || node.IsMissing() {
			continue
		}

		kind, name, ok := classifyNode(node, content)
		if !ok {
			continue
		}

		start, end := int(node.StartByte()), int(node.EndByte())
		if !validRange(start, end, len(content)) {
			continue
		}

		chunks = append(chunks, types.CodeChunk{
			Kind:       kind,
			Name:       nameOrAnonymous(name),
			Code:       string(content[start:end]),
			SourcePath: path,
		})
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// classifyNode maps a top-level node of any supported grammar to a chunk kind.
// Node type names do not collide across the javascript, typescript, python
// and go grammars, so one table serves them all.
func classifyNode(node *sitter.Node, src []byte) (types.ChunkKind, string, bool) {
	switch node.Type() {
	case "class_declaration", "abstract_class_declaration", "class_definition", "class":
		return types.KindClass, fieldText(node, "name", src), true
	case "function_declaration", "generator_function_declaration", "function_definition", "method_declaration":
		return types.KindFunction, fieldText(node, "name", src), true
	case "interface_declaration":
		return types.KindInterface, fieldText(node, "name", src), true
	case "type_alias_declaration":
		return types.KindTypeAlias, fieldText(node, "name", src), true
	case "enum_declaration":
		return types.KindEnum, fieldText(node, "name", src), true
	case "export_statement":
		return types.KindExportedDeclaration, exportedName(node, src), true
	case "lexical_declaration", "variable_declaration":
		name, ok := functionDeclarator(node, src)
		return types.KindFunction, name, ok
	case "decorated_definition":
		def := node.ChildByFieldName("definition")
		if def == nil {
			return "", "", false
		}
		kind, name, ok := classifyNode(def, src)
		return kind, name, ok
	case "type_declaration":
		return goTypeDeclaration(node, src)
	default:
		return "", "", false
	}
}

// exportedName prefers the nested declaration's identifier
func exportedName(node *sitter.Node, src []byte) string {
	for _, field := range []string{"declaration", "value"} {
		if inner := node.ChildByFieldName(field); inner != nil {
			if name := declaredName(inner, src); name != "" {
				return name
			}
		}
	}
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		if name := declaredName(node.NamedChild(i), src); name != "" {
			return name
		}
	}
	return ""
}

// declaredName returns the identifier a declaration introduces, if any
func declaredName(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "lexical_declaration", "variable_declaration":
		if d := firstNamedChildOfType(node, "variable_declarator"); d != nil {
			return fieldText(d, "name", src)
		}
		return ""
	case "export_clause", "string", "comment":
		return ""
	}
	return fieldText(node, "name", src)
}

// functionDeclarator accepts `const f = () => {}` style declarations
func functionDeclarator(node *sitter.Node, src []byte) (string, bool) {
	d := firstNamedChildOfType(node, "variable_declarator")
	if d == nil {
		return "", false
	}
	value := d.ChildByFieldName("value")
	if value == nil {
		return "", false
	}
	switch value.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return fieldText(d, "name", src), true
	default:
		return "", false
	}
}

// goTypeDeclaration classifies the first spec of a go type declaration
func goTypeDeclaration(node *sitter.Node, src []byte) (types.ChunkKind, string, bool) {
	spec := firstNamedChildOfType(node, "type_spec")
	if spec == nil {
		spec = firstNamedChildOfType(node, "type_alias")
	}
	if spec == nil {
		return "", "", false
	}
	name := fieldText(spec, "name", src)
	if typ := spec.ChildByFieldName("type"); typ != nil {
		switch typ.Type() {
		case "struct_type":
			return types.KindClass, name, true
		case "interface_type":
			return types.KindInterface, name, true
		}
	}
	return types.KindTypeAlias, name, true
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	start, end := int(child.StartByte()), int(child.EndByte())
	if !validRange(start, end, len(src)) {
		return ""
	}
	return string(src[start:end])
}

func firstNamedChildOfType(node *sitter.Node, typ string) *sitter.Node {
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child != nil && child.Type() == typ {
			return child
		}
	}
	return nil
}
