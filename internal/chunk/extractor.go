package chunk

// extractName finds the declared name of a chunkable node, used as the
// ParentName attached to any node nested beneath a container.
func extractName(n *Node, source []byte, language string) string {
	switch language {
	case "rust":
		return extractRustName(n, source)
	case "python":
		return extractPythonName(n, source)
	case "javascript", "typescript", "tsx":
		return extractJSName(n, source)
	default:
		return ""
	}
}

func extractRustName(n *Node, source []byte) string {
	switch n.Type {
	case "impl_item":
		// impl Trait for Type / impl Type — the last type_identifier is
		// the implementing type's name.
		var name string
		for _, child := range n.Children {
			if child.Type == "type_identifier" {
				name = child.GetContent(source)
			}
		}
		return name
	default:
		return firstIdentifierContent(n, source)
	}
}

func extractPythonName(n *Node, source []byte) string {
	if n.Type == "decorated_definition" {
		for _, child := range n.Children {
			if child.Type == "function_definition" || child.Type == "class_definition" {
				return firstIdentifierContent(child, source)
			}
		}
		return ""
	}
	return firstIdentifierContent(n, source)
}

func extractJSName(n *Node, source []byte) string {
	switch n.Type {
	case "lexical_declaration", "variable_declaration":
		for _, child := range n.Children {
			if child.Type != "variable_declarator" {
				continue
			}
			for _, grandchild := range child.Children {
				if grandchild.Type == "identifier" {
					return grandchild.GetContent(source)
				}
			}
		}
		return ""
	case "method_definition":
		for _, child := range n.Children {
			if child.Type == "property_identifier" {
				return child.GetContent(source)
			}
		}
		return firstIdentifierContent(n, source)
	case "class_declaration":
		for _, child := range n.Children {
			if child.Type == "type_identifier" || child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
		return ""
	case "interface_declaration", "type_alias_declaration":
		for _, child := range n.Children {
			if child.Type == "type_identifier" {
				return child.GetContent(source)
			}
		}
		return ""
	default:
		return firstIdentifierContent(n, source)
	}
}

// firstIdentifierContent returns the text of the first direct child whose
// type is one of the common tree-sitter identifier node types.
func firstIdentifierContent(n *Node, source []byte) string {
	for _, child := range n.Children {
		switch child.Type {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return child.GetContent(source)
		}
	}
	return ""
}

// arrowFunctionDeclarator reports whether a lexical_declaration or
// variable_declaration node binds a named variable to an arrow function —
// the JS/TS "arrow_function bound to a named variable" chunkable case from
// spec.md §4.1.
func arrowFunctionDeclarator(n *Node) bool {
	if n.Type != "lexical_declaration" && n.Type != "variable_declaration" {
		return false
	}
	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		for _, grandchild := range child.Children {
			if grandchild.Type == "arrow_function" {
				return true
			}
		}
	}
	return false
}
