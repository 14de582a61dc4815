package runtime

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// treeTable remembers the source text behind every tree a script parsed.
// Nodes do not link back to their tree, so entries are keyed by the root
// node's address and found again by walking Parent().
type treeTable struct {
	mu   sync.RWMutex
	text map[uintptr][]byte
}

func newTreeTable() *treeTable {
	return &treeTable{text: map[uintptr][]byte{}}
}

func rootKey(n *sitter.Node) uintptr {
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	return uintptr(unsafe.Pointer(n))
}

func (t *treeTable) put(tree *sitter.Tree, src []byte) {
	t.mu.Lock()
	t.text[rootKey(tree.RootNode())] = src
	t.mu.Unlock()
}

func (t *treeTable) source(n *sitter.Node) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src, ok := t.text[rootKey(n)]
	return src, ok
}

// nodeArg unwraps a proxied *sitter.Node.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	p, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok || n == nil {
		return nil, object.Errorf("%s: expected a node, got %T", fn, p.Interface())
	}
	return n, nil
}

func stringArg(fn, what string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

func proxyOrNil(fn string, n *sitter.Node) object.Object {
	if n == nil {
		return object.Nil
	}
	p, err := object.NewProxy(n)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return p
}

// parse_java(source) → tree
func makeParseJavaFn(tt *treeTable) *object.Builtin {
	return object.NewBuiltin("parse_java", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_java", 1, len(args))
		}
		text, errObj := stringArg("parse_java", "source", args[0])
		if errObj != nil {
			return errObj
		}
		lang, _ := ParserForLanguage("java")
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		src := []byte(text)
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return object.Errorf("parse_java: %v", err)
		}
		tt.put(tree, src)
		p, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse_java: %v", err)
		}
		return p
	})
}

// declarations(source [, path]) → unit map
//
// Extracts the package, imports and type declarations of a compilation unit
// the same way the indexer does, without touching the index.
func makeDeclarationsFn() *object.Builtin {
	return object.NewBuiltin("declarations", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 && len(args) != 2 {
			return object.NewArgsError("declarations", 1, len(args))
		}
		text, errObj := stringArg("declarations", "source", args[0])
		if errObj != nil {
			return errObj
		}
		path := "<inline>.java"
		if len(args) == 2 {
			if path, errObj = stringArg("declarations", "path", args[1]); errObj != nil {
				return errObj
			}
		}
		u, err := ParseJava(ctx, path, []byte(text))
		if err != nil {
			return object.Errorf("declarations: %v", err)
		}
		return UnitObject(u)
	})
}

// node_text(node) → string
func makeNodeTextFn(tt *treeTable) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, ok := tt.source(n)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(n.Content(src))
	})
}

// field(node, name) → node or nil
func makeFieldFn() *object.Builtin {
	return object.NewBuiltin("field", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("field", 2, len(args))
		}
		n, errObj := nodeArg("field", args[0])
		if errObj != nil {
			return errObj
		}
		name, errObj := stringArg("field", "name", args[1])
		if errObj != nil {
			return errObj
		}
		return proxyOrNil("field", n.ChildByFieldName(name))
	})
}

// captures(pattern, node) → [{capture: node}]
func makeCapturesFn(tt *treeTable) *object.Builtin {
	return object.NewBuiltin("captures", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("captures", 2, len(args))
		}
		pattern, errObj := stringArg("captures", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		n, errObj := nodeArg("captures", args[1])
		if errObj != nil {
			return errObj
		}
		src, ok := tt.source(n)
		if !ok {
			return object.Errorf("captures: node does not belong to a parsed tree")
		}
		lang, _ := ParserForLanguage("java")
		q, err := sitter.NewQuery([]byte(pattern), lang)
		if err != nil {
			return object.Errorf("captures: bad pattern: %v", err)
		}
		defer q.Close()

		qc := sitter.NewQueryCursor()
		defer qc.Close()
		qc.Exec(q, n)

		out := []object.Object{}
		for {
			m, ok := qc.NextMatch()
			if !ok {
				break
			}
			m = qc.FilterPredicates(m, src)
			row := make(map[string]object.Object, len(m.Captures))
			for _, c := range m.Captures {
				row[q.CaptureNameForId(c.Index)] = proxyOrNil("captures", c.Node)
			}
			out = append(out, object.NewMap(row))
		}
		return object.NewList(out)
	})
}

// scriptLog backs the log global.
type scriptLog struct {
	logger *slog.Logger
	script string
}

func (l *scriptLog) Info(msg string)  { l.logger.Info(msg, "script", l.script) }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg, "script", l.script) }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg, "script", l.script) }
