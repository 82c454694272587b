package interp_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gikoskos/simbly/internal/globaltable"
	"github.com/gikoskos/simbly/internal/interp"
)

func newProgram(t *testing.T, src string, args ...int32) (*interp.Program, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	sink := interp.NewPrintSink(&out)
	globals := globaltable.New(globaltable.InitZero)
	p := interp.New("t.simbly", strings.NewReader(src), args, globals, sink)
	return p, &out
}

// runToFinish drives a program's InterpretNextLine loop until it reaches
// Finished, as the scheduler's worker would across many visits, failing the
// test if it doesn't terminate within a generous step budget.
func runToFinish(t *testing.T, p *interp.Program) error {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if p.State == interp.Finished {
			return nil
		}
		if err := p.InterpretNextLine(); err != nil {
			return err
		}
	}
	t.Fatal("program did not reach Finished within step budget")
	return nil
}

func Test_EmptyProgram_FinishesCleanly(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\n")
	require.NoError(t, runToFinish(t, p))
	assert.False(t, p.ErrorFlag)
}

func Test_BadMagic_Halts(t *testing.T) {
	p, _ := newProgram(t, "not a program\n")
	err := runToFinish(t, p)
	assert.Error(t, err)
	assert.True(t, p.ErrorFlag)
	assert.Equal(t, interp.Finished, p.State)
}

func Test_SetAndPrint(t *testing.T) {
	p, out := newProgram(t, "#PROGRAM\nSET $x 5\nPRINT \"x is\" $x\n")
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "x is")
	assert.Contains(t, out.String(), "5")
}

func Test_ArithmeticHandlers(t *testing.T) {
	for _, tc := range []struct {
		op   string
		a, b int32
		want int32
	}{
		{"ADD", 2, 3, 5},
		{"SUB", 5, 3, 2},
		{"MUL", 4, 3, 12},
		{"DIV", 10, 3, 3},
		{"MOD", 10, 3, 1},
	} {
		src := "#PROGRAM\n" + tc.op + " $r " + itoa(tc.a) + " " + itoa(tc.b) + "\nPRINT \"r\" $r\n"
		p, out := newProgram(t, src)
		require.NoError(t, runToFinish(t, p), tc.op)
		assert.Contains(t, out.String(), itoa(tc.want), tc.op)
	}
}

func Test_DivByZero_Halts(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nDIV $r 1 0\n")
	err := runToFinish(t, p)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func Test_ModByZero_Halts(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nMOD $r 1 0\n")
	err := runToFinish(t, p)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func Test_BranchForward(t *testing.T) {
	src := "#PROGRAM\n" +
		"SET $x 1\n" +
		"BRA LEND\n" +
		"SET $x 99\n" +
		"LEND SET $y 2\n" +
		"PRINT \"done\"\n"
	p, out := newProgram(t, src)
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "done")
}

func Test_BranchBackward_Loop(t *testing.T) {
	src := "#PROGRAM\n" +
		"SET $i 0\n" +
		"LLOOP ADD $i $i 1\n" +
		"BRLT $i 3 LLOOP\n" +
		"PRINT \"i\" $i\n"
	p, out := newProgram(t, src)
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "3")
}

func Test_BranchToUndefinedLabel_Halts(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nBRA LNOPE\n")
	err := runToFinish(t, p)
	assert.Error(t, err)
}

func Test_LoadStoreGlobal(t *testing.T) {
	src := "#PROGRAM\n" +
		"STORE $gvar 7\n" +
		"LOAD $x $gvar\n" +
		"PRINT \"x\" $x\n"
	p, out := newProgram(t, src)
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "7")
}

func Test_ArrayScalarIndex(t *testing.T) {
	src := "#PROGRAM\n" +
		"SET $arr[2] 9\n" +
		"PRINT \"v\" $arr[2]\n"
	p, out := newProgram(t, src)
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "9")
}

func Test_SemaphoreUpDownNonBlocking(t *testing.T) {
	src := "#PROGRAM\n" +
		"UP $sem\n" +
		"DOWN $sem\n" +
		"PRINT \"ok\"\n"
	p, out := newProgram(t, src)
	for p.State != interp.Blocked && p.State != interp.Finished {
		require.NoError(t, p.InterpretNextLine())
	}
	require.Equal(t, interp.Blocked, p.State)
	// DOWN only parks the program; the scheduler's blocked tick takes the
	// counter. The earlier UP left it at 1, so that take succeeds at once.
	require.True(t, p.BlockedOn.TryDown(p.BlockedIdx))
	p.State = interp.InstructionLine
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "ok")
}

func Test_SemaphoreDown_TransitionsToBlocked(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nDOWN $sem\nPRINT \"after\"\n")
	for p.State != interp.Blocked && p.State != interp.Finished {
		require.NoError(t, p.InterpretNextLine())
	}
	assert.Equal(t, interp.Blocked, p.State)
	require.NotNil(t, p.BlockedOn)
}

func Test_Sleep_TransitionsToSleeping(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nSLEEP 5\nPRINT \"after\"\n")
	for p.State != interp.Sleeping && p.State != interp.Finished {
		require.NoError(t, p.InterpretNextLine())
	}
	require.Equal(t, interp.Sleeping, p.State)
	assert.Equal(t, int64(5), p.SleepLeft.Sec)
}

func Test_SleepNonPositive_IsIgnored(t *testing.T) {
	p, out := newProgram(t, "#PROGRAM\nSLEEP 0\nPRINT \"right after\"\n")
	require.NoError(t, runToFinish(t, p))
	assert.NotEqual(t, interp.Sleeping, p.State)
	assert.Contains(t, out.String(), "right after")
}

func Test_Return_FinishesEarly(t *testing.T) {
	src := "#PROGRAM\n" +
		"RETURN\n" +
		"PRINT \"unreachable\"\n"
	p, out := newProgram(t, src)
	require.NoError(t, runToFinish(t, p))
	assert.NotContains(t, out.String(), "unreachable")
}

func Test_Argv_ReadsArgcAndArgs(t *testing.T) {
	p, out := newProgram(t, "#PROGRAM\nPRINT \"argc\" $argc $argv[0]\n", 42)
	require.NoError(t, runToFinish(t, p))
	assert.Contains(t, out.String(), "1")
	assert.Contains(t, out.String(), "42")
}

func Test_Argv_OutOfRange_Halts(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nPRINT \"x\" $argv[5]\n", 1)
	err := runToFinish(t, p)
	assert.Error(t, err)
}

func Test_SetArgc_Halts(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nSET $argc 1\n")
	err := runToFinish(t, p)
	assert.Error(t, err)
}

func Test_Kill_MarksFinishedWithErrorFlag(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\nSLEEP 100\n")
	require.NoError(t, p.InterpretNextLine())
	require.NoError(t, p.InterpretNextLine())
	p.Kill()
	assert.Equal(t, interp.Finished, p.State)
	assert.True(t, p.ErrorFlag)
}

func Test_Dump_WritesIDAndState(t *testing.T) {
	p, _ := newProgram(t, "#PROGRAM\n", 9, 8)
	var buf bytes.Buffer
	p.Dump(&buf)
	assert.Contains(t, buf.String(), "program")
	assert.Contains(t, buf.String(), p.State.String())
}

func itoa(v int32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
