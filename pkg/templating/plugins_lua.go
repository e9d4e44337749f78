package templating

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
	lua "github.com/yuin/gopher-lua"
)

// luaScript is a callback implemented by a Lua file defining
//
//	function render(params, context, content, data) ... end
//
// The Lua state is not safe for concurrent use, so calls are serialized.
type luaScript struct {
	name  string
	path  string
	mu    sync.Mutex
	state *lua.LState
	fn    lua.LValue
}

// loadScripts loads every .lua file in dir. A missing directory yields no
// scripts.
func loadScripts(dir string) ([]*luaScript, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	scripts := make([]*luaScript, 0, len(paths))
	for _, path := range paths {
		s, err := loadScript(path)
		if err != nil {
			closeScripts(scripts)
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

func loadScript(path string) (*luaScript, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	L := lua.NewState()
	if err = L.DoString(string(src)); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load callback script %s: %w", path, err)
	}
	fn := L.GetGlobal("render")
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("callback script %s does not define a render function", path)
	}
	return &luaScript{
		name:  strings.TrimSuffix(filepath.Base(path), ".lua"),
		path:  path,
		state: L,
		fn:    fn,
	}, nil
}

func closeScripts(scripts []*luaScript) {
	for _, s := range scripts {
		s.mu.Lock()
		s.state.Close()
		s.mu.Unlock()
	}
}

// call runs the render function and returns its first result as a string.
func (s *luaScript) call(params lex.Params, ctx any, content string, data *lex.Map) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	L := s.state

	p := L.NewTable()
	for k, v := range params {
		p.RawSetString(k, lua.LString(v))
	}
	err := L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true},
		p, goToLua(L, ctx), lua.LString(content), goToLua(L, data))
	if err != nil {
		return "", fmt.Errorf("script %s: %w", s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	if ret.Type() == lua.LTNil {
		return "", nil
	}
	return ret.String(), nil
}

// goToLua converts a data tree to Lua values. Mappings become tables with
// string keys and sequences become 1-based arrays.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(t)
	case bool:
		return lua.LBool(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return lua.LNumber(f)
		}
		return lua.LString(t.String())
	case *lex.Map:
		if t == nil {
			return lua.LNil
		}
		tbl := L.NewTable()
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			tbl.RawSetString(k, goToLua(L, val))
		}
		return tbl
	}
	if f, ok := lex.Number(v); ok {
		return lua.LNumber(f)
	}
	if m, ok := lex.AsMap(v); ok {
		return goToLua(L, m)
	}
	if items, ok := lex.Items(v); ok {
		tbl := L.NewTable()
		for _, item := range items {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	}
	return lua.LString(lex.Stringify(v))
}
