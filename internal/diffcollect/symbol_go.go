package diffcollect

import (
	"go/ast"
	"go/parser"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"

	"pr-review-automation/internal/domain"
)

// findGoSymbol locates the smallest enclosing function or struct type
// declaration covering [startLine, endLine] in a Go source file, using
// golang.org/x/tools/go/ast/astutil.PathEnclosingInterval, so the
// innermost declaration wins rather than the first one found.
func findGoSymbol(content string, startLine, endLine int) *domain.Symbol {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil || file == nil {
		return nil
	}
	tf := fset.File(file.Pos())
	if tf == nil || startLine < 1 || startLine > tf.LineCount() {
		return nil
	}
	if endLine < startLine {
		endLine = startLine
	}
	if endLine > tf.LineCount() {
		endLine = tf.LineCount()
	}
	startPos := tf.LineStart(startLine)
	endOffset := tf.LineStart(endLine)
	// Extend to end of that line when possible.
	endPos := endOffset
	if endLine < tf.LineCount() {
		endPos = tf.LineStart(endLine+1) - 1
	} else {
		endPos = tf.Pos(tf.Size())
	}

	path, _ := astutil.PathEnclosingInterval(file, startPos, endPos)
	for _, n := range path {
		switch decl := n.(type) {
		case *ast.FuncDecl:
			return &domain.Symbol{
				Kind:      "function",
				Name:      decl.Name.Name,
				StartLine: tf.Position(decl.Pos()).Line,
				EndLine:   tf.Position(decl.End()).Line,
			}
		case *ast.TypeSpec:
			if _, ok := decl.Type.(*ast.StructType); ok {
				return &domain.Symbol{
					Kind:      "class",
					Name:      decl.Name.Name,
					StartLine: tf.Position(decl.Pos()).Line,
					EndLine:   tf.Position(decl.End()).Line,
				}
			}
		}
	}
	return nil
}
