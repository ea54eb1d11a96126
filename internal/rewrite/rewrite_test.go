package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/scopestar/internal/visibility"
	"github.com/leapstack-labs/scopestar/pkg/format"
)

const greeterSrc = `load("cpp", "magic")

class Greeter:
    """Says hello."""
    name: str
    public()
    def Greeter(n):
        this.name = n
    def _Greeter():
        print("bye " + this.name)
    def greet(greeting = "hello"):
        return greeting + " " + this.name

def main():
    g = Greeter("world")
    print(g.greet())
`

func TestRewrite_Greeter(t *testing.T) {
	unit, err := Rewrite("greeter.star", []byte(greeterSrc), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, unit.Requested)
	assert.Equal(t, []string{"main"}, unit.Functions)
	assert.Equal(t, strings.Count(greeterSrc, "\n"), strings.Count(unit.Source, "\n"), "desugaring must preserve lines")

	want := []*ClassDescriptor{{
		Name: "Greeter",
		Doc:  "Says hello.",
		Pos:  Position{Line: 3, Col: 1},
		Members: []*Member{
			{Name: "name", Type: "str", Access: visibility.Private, Pos: Position{Line: 5, Col: 5}},
		},
		Methods: []*Method{
			{Name: "Greeter", Kind: MethodConstructor, Access: visibility.Public, Params: []string{"n"}, Pos: Position{Line: 7, Col: 5}},
			{Name: "_Greeter", Kind: MethodDestructor, Access: visibility.Public, Pos: Position{Line: 9, Col: 5}},
			{Name: "greet", Kind: MethodOrdinary, Access: visibility.Public, Params: []string{"greeting"}, Pos: Position{Line: 11, Col: 5}},
		},
		Constructor: "Greeter",
		Destructor:  "_Greeter",
		HasBoundary: true,
	}}
	if diff := cmp.Diff(want, unit.Classes, cmpopts.IgnoreFields(Method{}, "End")); diff != "" {
		t.Errorf("descriptors mismatch (-want +got):\n%s", diff)
	}
	for i, line := range []int32{8, 10, 12} {
		assert.Equal(t, line, unit.Classes[0].Methods[i].End.Line, unit.Classes[0].Methods[i].Name)
	}

	b := unit.Classes[0].Boundary()
	assert.Equal(t, []string{"name"}, b.Private())
	assert.True(t, unit.Classes[0].HasLifecycle())
}

func TestRewrite_LoweredShape(t *testing.T) {
	unit, err := Rewrite("greeter.star", []byte(greeterSrc), DefaultOptions())
	require.NoError(t, err)

	stmts := unit.File.Stmts
	require.Len(t, stmts, 5)
	assert.IsType(t, &syntax.LoadStmt{}, stmts[0])

	factory, ok := stmts[1].(*syntax.DefStmt)
	require.True(t, ok)
	assert.Equal(t, "Greeter", factory.Name.Name)
	assert.Empty(t, factory.Params)

	// Three methods then the return of [[methods], [defaults]].
	require.Len(t, factory.Body, 4)
	for i, name := range []string{"Greeter.Greeter", "Greeter._Greeter", "Greeter.greet"} {
		m, ok := factory.Body[i].(*syntax.DefStmt)
		require.True(t, ok)
		assert.Equal(t, name, m.Name.Name)
		require.NotEmpty(t, m.Params)
		this, ok := m.Params[0].(*syntax.Ident)
		require.True(t, ok)
		assert.Equal(t, ThisParam, this.Name)
	}
	ret, ok := factory.Body[3].(*syntax.ReturnStmt)
	require.True(t, ok)
	result, ok := ret.Result.(*syntax.ListExpr)
	require.True(t, ok)
	require.Len(t, result.List, 2)
	assert.Len(t, result.List[0].(*syntax.ListExpr).List, 3)
	assert.Len(t, result.List[1].(*syntax.ListExpr).List, 1)

	assertCall(t, stmts[2], "Greeter", ClassBuiltin)
	assertCall(t, stmts[4], "main", TrackBuiltin)
}

func TestRewrite_FormatLowered(t *testing.T) {
	unit, err := Rewrite("greeter.star", []byte(greeterSrc), DefaultOptions())
	require.NoError(t, err)

	out := format.Format(unit.File)
	for _, line := range []string{
		"def Greeter():",
		"    def Greeter.Greeter(this, n):",
		"    def Greeter.greet(this, greeting=\"hello\"):",
		"    return [[Greeter.Greeter, Greeter._Greeter, Greeter.greet], [lambda: None]]",
		"Greeter = __class__(\"Greeter\", Greeter())",
		"main = __track__(main)",
	} {
		assert.Contains(t, out, line+"\n")
	}
}

func assertCall(t *testing.T, stmt syntax.Stmt, lhs, fn string) {
	t.Helper()
	assign, ok := stmt.(*syntax.AssignStmt)
	require.True(t, ok, "want assignment, got %T", stmt)
	assert.Equal(t, lhs, assign.LHS.(*syntax.Ident).Name)
	call, ok := assign.RHS.(*syntax.CallExpr)
	require.True(t, ok)
	assert.Equal(t, fn, call.Fn.(*syntax.Ident).Name)
}

func TestRewrite_Compiles(t *testing.T) {
	unit, err := Rewrite("greeter.star", []byte(greeterSrc), DefaultOptions())
	require.NoError(t, err)

	predeclared := starlark.StringDict{
		ClassBuiltin: starlark.None,
		TrackBuiltin: starlark.None,
	}
	_, err = starlark.FileProgram(unit.File, predeclared.Has)
	require.NoError(t, err)
}

func TestRewrite_AccessDefaults(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		wantAccess  map[string]visibility.Access
		wantBoundry bool
	}{
		{
			name: "no markers means everything public",
			src: `class Point:
    x: int = 0
    y: int = 0
    def norm():
        return this.x + this.y
`,
			wantAccess: map[string]visibility.Access{"x": visibility.Public, "y": visibility.Public, "norm": visibility.Public},
		},
		{
			name: "public marker makes leading members private",
			src: `class Account:
    balance: int = 0
    def audit():
        pass
    public()
    def deposit(n):
        this.balance += n
`,
			wantAccess:  map[string]visibility.Access{"balance": visibility.Private, "audit": visibility.Private, "deposit": visibility.Public},
			wantBoundry: true,
		},
		{
			name: "private switches back",
			src: `class Account:
    public()
    owner: str = ""
    private()
    pin: int = 0
`,
			wantAccess:  map[string]visibility.Access{"owner": visibility.Public, "pin": visibility.Private},
			wantBoundry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := Rewrite("access.star", []byte(tt.src), DefaultOptions())
			require.NoError(t, err)
			require.Len(t, unit.Classes, 1)
			c := unit.Classes[0]
			assert.Equal(t, tt.wantBoundry, c.HasBoundary)
			assert.False(t, c.HasLifecycle())

			got := make(map[string]visibility.Access)
			for _, m := range c.Members {
				got[m.Name] = m.Access
			}
			for _, m := range c.Methods {
				got[m.Name] = m.Access
			}
			assert.Equal(t, tt.wantAccess, got)
		})
	}
}

func TestRewrite_DefaultsMayShareMemberNames(t *testing.T) {
	src := `opts = struct(a = 2)

class A:
    a: int = 1
    b: int = opts.a
    c = dict(a = 3)
    d = [a for a in range(2)]
`
	unit, err := Rewrite("a.star", []byte(src), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, unit.Classes[0].Members, 4)
}

func TestRewrite_Errors(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantClass string
		wantLine  int32
		wantMsg   string
	}{
		{
			name:      "nested class",
			src:       "def f():\n    class Inner:\n        pass\n",
			wantClass: "Inner",
			wantLine:  2,
			wantMsg:   "nested class",
		},
		{
			name:      "inheritance",
			src:       "class A(B):\n    pass\n",
			wantClass: "A",
			wantLine:  1,
			wantMsg:   "inheritance is not supported",
		},
		{
			name:      "missing colon",
			src:       "class A\n    pass\n",
			wantClass: "A",
			wantLine:  1,
			wantMsg:   "missing ':'",
		},
		{
			name:      "empty body",
			src:       "class A:\n\nx = 1\n",
			wantClass: "A",
			wantLine:  1,
			wantMsg:   "class body is empty",
		},
		{
			name:      "multiple constructors",
			src:       "class A:\n    def A():\n        pass\n    def A(x):\n        pass\n",
			wantClass: "A",
			wantLine:  4,
			wantMsg:   "multiple constructors",
		},
		{
			name:      "multiple destructors",
			src:       "class A:\n    def _A():\n        pass\n    def _A():\n        pass\n",
			wantClass: "A",
			wantLine:  4,
			wantMsg:   "multiple destructors",
		},
		{
			name:      "destructor with parameters",
			src:       "class A:\n    def _A(x):\n        pass\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "destructor takes no parameters",
		},
		{
			name:      "destructor of another class",
			src:       "class A:\n    def _B():\n        pass\nclass B:\n    pass\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "destructor without matching class",
		},
		{
			name:      "destructor marker on free function",
			src:       "class A:\n    pass\ndef _A():\n    pass\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "destructor marker on free function",
		},
		{
			name:      "marker with arguments",
			src:       "class A:\n    public(1)\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "takes no arguments",
		},
		{
			name:      "protected marker",
			src:       "class A:\n    protected()\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "protected() is not supported",
		},
		{
			name:      "marker inside method",
			src:       "class A:\n    def run():\n        public()\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "outside class body",
		},
		{
			name:     "marker at module level",
			src:      "public()\n",
			wantLine: 1,
			wantMsg:  "outside class body",
		},
		{
			name:      "explicit this",
			src:       "class A:\n    def run(this):\n        pass\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "explicit this parameter",
		},
		{
			name:      "duplicate member",
			src:       "class A:\n    x: int\n    x: str\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "duplicate member",
		},
		{
			name:      "default refers to member",
			src:       "class A:\n    a: int = 1\n    b: int = a + 1\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "default refers to member a; set it in the constructor",
		},
		{
			name:      "default refers to method",
			src:       "class A:\n    def size():\n        return 1\n    n = size()\n",
			wantClass: "A",
			wantLine:  4,
			wantMsg:   "default refers to member size",
		},
		{
			name:      "member and method clash",
			src:       "class A:\n    run: int = 1\n    def run():\n        pass\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "duplicate member",
		},
		{
			name:      "missing annotation",
			src:       "class A:\n    x: = 3\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "missing its type annotation",
		},
		{
			name:      "control flow in class body",
			src:       "class A:\n    if True:\n        pass\n",
			wantClass: "A",
			wantLine:  2,
			wantMsg:   "unsupported statement",
		},
		{
			name:      "duplicate class",
			src:       "class A:\n    pass\nclass A:\n    pass\n",
			wantClass: "A",
			wantLine:  3,
			wantMsg:   "duplicate class definition",
		},
		{
			name:     "plain syntax error",
			src:      "def f(:\n    pass\n",
			wantLine: 1,
			wantMsg:  "syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rewrite("bad.star", []byte(tt.src), DefaultOptions())
			require.Error(t, err)

			var terr *TransformationError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, "bad.star", terr.File)
			assert.Equal(t, tt.wantClass, terr.Class)
			assert.Equal(t, tt.wantLine, terr.Line)
			assert.Contains(t, terr.Msg, tt.wantMsg)
		})
	}
}

func TestRewrite_ErrorList(t *testing.T) {
	src := "class A:\n    protected()\nclass B:\n    def _B(x):\n        pass\n"
	_, err := Rewrite("bad.star", []byte(src), DefaultOptions())
	require.Error(t, err)

	var list ErrorList
	require.True(t, errors.As(err, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Class)
	assert.Equal(t, "B", list[1].Class)
	assert.Contains(t, err.Error(), "and 1 more errors")
}

func TestRewrite_DestructorPrefix(t *testing.T) {
	src := "class File:\n    def File(path):\n        pass\n    def del_File():\n        pass\n"
	opts := DefaultOptions()
	opts.DestructorPrefix = "del_"

	unit, err := Rewrite("file.star", []byte(src), opts)
	require.NoError(t, err)
	assert.Equal(t, "del_File", unit.Classes[0].Destructor)

	// With the default prefix the same method is ordinary.
	unit, err = Rewrite("file.star", []byte(src), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, unit.Classes[0].Destructor)
	m, ok := unit.Classes[0].Method("del_File")
	require.True(t, ok)
	assert.Equal(t, MethodOrdinary, m.Kind)
}

func TestRewrite_StringsAreNotClasses(t *testing.T) {
	src := "DOC = \"\"\"\nclass NotAClass:\n    x: int\n\"\"\"\nitems = [\n    1,\n]\n"
	unit, err := Rewrite("doc.star", []byte(src), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, unit.Classes)
	assert.Equal(t, src, unit.Source)
}

func TestRewrite_MultiLineDefault(t *testing.T) {
	src := "class Bag:\n    items: list = [\n        1,\n        2,\n    ]\n    tag: str = \"a=b\"  # keep\n"
	unit, err := Rewrite("bag.star", []byte(src), DefaultOptions())
	require.NoError(t, err)

	c := unit.Classes[0]
	require.Len(t, c.Members, 2)
	assert.Equal(t, "list", c.Members[0].Type)
	assert.Equal(t, "str", c.Members[1].Type)
	assert.Equal(t, "[1, 2]", c.Members[0].Default)
	assert.Equal(t, `"a=b"`, c.Members[1].Default)
	assert.Contains(t, unit.Source, `tag = "a=b"  # keep`)
}

func TestRequested(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{`load("cpp", "magic")`, true},
		{`load('cpp', 'magic')`, true},
		{"load(\n    \"cpp\",\n    \"magic\",\n)", true},
		{`load("cppx", "magic")`, false},
		{"def f():\n    load(\"cpp\", \"magic\")", false},
		{`x = 'load("cpp", "magic")'`, false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Requested([]byte(tt.src)), "%q", tt.src)
	}
}

func TestScanLines(t *testing.T) {
	src := "a = (1,\n  2)\nb = 3 \\\n  + 4\ns = '''x\n# not a comment\n'''\n# comment\n"
	lines := scanLines(src)

	starts := []int{}
	for _, l := range lines {
		if l.start && !l.blank {
			starts = append(starts, l.num)
		}
	}
	assert.Equal(t, []int{1, 3, 5}, starts)

	diff := cmp.Diff(physLine{num: 8, text: "# comment", start: true, blank: true}, lines[7], cmp.AllowUnexported(physLine{}), cmpopts.EquateEmpty())
	assert.Empty(t, diff)
}
