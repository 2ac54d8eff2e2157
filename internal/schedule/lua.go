package schedule

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/apsweep/internal/models"
)

// LoadScript runs a Lua schedule script in a sandbox. The script must define
// a global function schedule() returning an array of tables with integer
// fields mode and concurrency, e.g.
//
//	function schedule()
//	  return { {mode=0, concurrency=1}, {mode=1, concurrency=4} }
//	end
//
// The returned list is validated before use.
func LoadScript(path string) ([]models.RunSpec, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule script: %w", err)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()

	openSafeLibs(L)

	if err := L.DoString(string(script)); err != nil {
		return nil, fmt.Errorf("failed to load schedule script: %w", err)
	}

	fn := L.GetGlobal("schedule")
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("schedule script must define a 'schedule' function")
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("schedule() failed: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("schedule() must return a table, got %s", ret.Type())
	}

	specs, err := tableToSpecs(tbl)
	if err != nil {
		return nil, err
	}
	if err := Validate(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// openSafeLibs loads base, table, string and math without file or process access.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Schedules must be reproducible
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func tableToSpecs(tbl *lua.LTable) ([]models.RunSpec, error) {
	n := tbl.Len()
	specs := make([]models.RunSpec, 0, n)
	for i := 1; i <= n; i++ {
		entry, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("schedule entry %d is not a table", i)
		}
		mode, err := intField(entry, "mode")
		if err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		conc, err := intField(entry, "concurrency")
		if err != nil {
			return nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		specs = append(specs, models.RunSpec{Mode: mode, Concurrency: conc})
	}
	return specs, nil
}

func intField(tbl *lua.LTable, name string) (int, error) {
	v, ok := tbl.RawGetString(name).(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("field %q must be a number", name)
	}
	if float64(v) != float64(int(v)) {
		return 0, fmt.Errorf("field %q must be an integer, got %v", name, v)
	}
	return int(v), nil
}
