package lua

import (
	"errors"
	"reflect"
	"testing"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/ark/internal/plugin"
)

func TestBridgeToGoValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	tests := []struct {
		name     string
		input    glua.LValue
		expected any
	}{
		{"nil", glua.LNil, nil},
		{"true", glua.LTrue, true},
		{"false", glua.LFalse, false},
		{"integer", glua.LNumber(42), int64(42)},
		{"float", glua.LNumber(3.14), 3.14},
		{"string", glua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := bridge.ToGoValue(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ToGoValue(%v) = %v (%T), want %v (%T)",
					tt.input, result, result, tt.expected, tt.expected)
			}
		})
	}
}

func TestBridgeToGoValueTable(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	t.Run("array", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetInt(1, glua.LString("a"))
		tbl.RawSetInt(2, glua.LString("b"))

		want := []any{"a", "b"}
		if got := bridge.ToGoValue(tbl); !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue() = %v, want %v", got, want)
		}
	})

	t.Run("map", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("name", glua.LString("test"))
		tbl.RawSetString("count", glua.LNumber(2))

		want := map[string]any{"name": "test", "count": int64(2)}
		if got := bridge.ToGoValue(tbl); !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue() = %v, want %v", got, want)
		}
	})

	t.Run("sparse array is a map", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetInt(1, glua.LString("a"))
		tbl.RawSetInt(3, glua.LString("c"))

		if _, ok := bridge.ToGoValue(tbl).(map[string]any); !ok {
			t.Errorf("ToGoValue() = %T, want map", bridge.ToGoValue(tbl))
		}
	})

	t.Run("circular", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("self", tbl)

		got, ok := bridge.ToGoValue(tbl).(map[string]any)
		if !ok {
			t.Fatalf("ToGoValue() = %T, want map", bridge.ToGoValue(tbl))
		}
		if got["self"] != nil {
			t.Errorf("circular reference = %v, want nil", got["self"])
		}
	})
}

func TestBridgeToLuaValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	tests := []struct {
		name     string
		input    any
		expected glua.LValue
	}{
		{"nil", nil, glua.LNil},
		{"bool", true, glua.LTrue},
		{"int", 42, glua.LNumber(42)},
		{"int64", int64(7), glua.LNumber(7)},
		{"float64", 1.5, glua.LNumber(1.5)},
		{"string", "hi", glua.LString("hi")},
		{"bytes", []byte("raw"), glua.LString("raw")},
		{"error", errors.New("bad"), glua.LString("bad")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.ToLuaValue(tt.input); got != tt.expected {
				t.Errorf("ToLuaValue(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBridgeToLuaValueStruct(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	type sample struct {
		Name   string `json:"name,omitempty"`
		Count  int
		hidden bool
	}

	tbl, ok := bridge.ToLuaValue(sample{Name: "x", Count: 3}).(*glua.LTable)
	if !ok {
		t.Fatal("ToLuaValue(struct) did not return a table")
	}
	if got := tbl.RawGetString("name"); got != glua.LString("x") {
		t.Errorf("name = %v, want x", got)
	}
	if got := tbl.RawGetString("Count"); got != glua.LNumber(3) {
		t.Errorf("Count = %v, want 3", got)
	}
	if got := tbl.RawGetString("hidden"); got != glua.LNil {
		t.Errorf("hidden = %v, want nil", got)
	}
}

func TestBridgeStructPointerIsUserData(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	imports := plugin.NewImports()
	lv := bridge.ToLuaValue(imports)
	if _, ok := lv.(*glua.LUserData); !ok {
		t.Fatalf("ToLuaValue(*Imports) = %T, want userdata", lv)
	}
	if got := bridge.ToGoValue(lv); got != imports {
		t.Errorf("ToGoValue() = %v, want the same *Imports", got)
	}
}

func TestBridgeLuaFunctionToGo(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	if err := L.DoString(`function concat(a, b) return a .. b, #a end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	fn, ok := bridge.ToGoValue(L.GetGlobal("concat")).(plugin.Func)
	if !ok {
		t.Fatalf("ToGoValue(function) = %T, want plugin.Func", bridge.ToGoValue(L.GetGlobal("concat")))
	}

	results, err := fn("ab", "cd")
	if err != nil {
		t.Fatalf("Func() error = %v", err)
	}
	want := []any{"abcd", int64(2)}
	if !reflect.DeepEqual(results, want) {
		t.Errorf("Func() = %v, want %v", results, want)
	}
}

func TestBridgeLuaFunctionError(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	if err := L.DoString(`function fail() error("nope") end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	fn := bridge.ToGoValue(L.GetGlobal("fail")).(plugin.Func)

	if _, err := fn(); err == nil {
		t.Error("Func() should return the Lua error")
	}
	if L.GetTop() != 0 {
		t.Errorf("stack top = %d after error, want 0", L.GetTop())
	}
}

func TestBridgeGoFuncToLua(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	double := plugin.Func(func(args ...any) ([]any, error) {
		n, _ := args[0].(int64)
		return []any{n * 2}, nil
	})
	fail := plugin.Func(func(args ...any) ([]any, error) {
		return nil, errors.New("refused")
	})

	L.SetGlobal("double", bridge.ToLuaValue(double))
	L.SetGlobal("fail", bridge.ToLuaValue(fail))

	if err := L.DoString(`result = double(21)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := L.GetGlobal("result"); got != glua.LNumber(42) {
		t.Errorf("double(21) = %v, want 42", got)
	}

	if err := L.DoString(`ok, msg = pcall(fail)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := L.GetGlobal("ok"); got != glua.LFalse {
		t.Errorf("pcall(fail) ok = %v, want false", got)
	}
}

func TestBridgeCallFunc(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	if err := L.DoString(`function keys(t) local n = 0 for _ in pairs(t) do n = n + 1 end return n end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	results, err := bridge.CallFunc(L.GetGlobal("keys").(*glua.LFunction), map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("CallFunc() error = %v", err)
	}
	if len(results) != 1 || results[0] != int64(2) {
		t.Errorf("CallFunc() = %v, want [2]", results)
	}
}
