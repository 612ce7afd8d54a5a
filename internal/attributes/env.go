package attributes

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/execsnoop/internal/record"
)

// Env is the expression environment built from one exec.
type Env struct {
	Args    []string `expr:"args"`
	Cmdline string   `expr:"cmdline"`
	Cwd     string   `expr:"cwd"`
	Comm    string   `expr:"comm"`
	Pcomm   string   `expr:"pcomm"`
	Pid     int      `expr:"pid"`
	Tid     int      `expr:"tid"`
	Ppid    int      `expr:"ppid"`
	UID     int      `expr:"uid"`
	GID     int      `expr:"gid"`
	Error   int      `expr:"error"`
	Argc    int      `expr:"argc"`
	Failed  bool     `expr:"failed"`
}

// NewEnv builds the environment for ev.
func NewEnv(ev *record.Event) Env {
	return Env{
		Args:    ev.Args,
		Cmdline: ev.CommandLine(),
		Cwd:     ev.Cwd,
		Comm:    ev.Comm,
		Pcomm:   ev.ParentComm,
		Pid:     int(ev.Pid),
		Tid:     int(ev.Tid),
		Ppid:    int(ev.Ppid),
		UID:     int(ev.UID),
		GID:     int(ev.GID),
		Error:   int(ev.Error),
		Argc:    int(ev.ArgsCount),
		Failed:  ev.Failed(),
	}
}

func compile(exprStr string) (*vm.Program, error) {
	return expr.Compile(exprStr, expr.Env(Env{}))
}

func run(program *vm.Program, ev *record.Event) (any, error) {
	if ev == nil {
		return nil, fmt.Errorf("no event available")
	}
	return expr.Run(program, NewEnv(ev))
}
