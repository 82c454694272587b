package scheduler_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gikoskos/simbly/internal/globaltable"
	"github.com/gikoskos/simbly/internal/rtlog"
	"github.com/gikoskos/simbly/internal/scheduler"
)

func testLog() *rtlog.Logger { return rtlog.New(io.Discard) }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func Test_DefaultWorkerCount_FlooredAtMin(t *testing.T) {
	assert.GreaterOrEqual(t, scheduler.DefaultWorkerCount(), scheduler.MinWorkers)
}

func Test_Spawn_RunsToCompletion(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	src := "#PROGRAM\nPRINT \"hello\"\n"
	a.Spawn("t.simbly", strings.NewReader(src), nil)

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(out.String(), "hello")
	})
	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(out.String(), "finished")
	})
}

func Test_Spawn_MultiplePrograms_AllComplete(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	for i := 0; i < 8; i++ {
		src := "#PROGRAM\nPRINT \"done\"\n"
		a.Spawn("t.simbly", strings.NewReader(src), nil)
	}

	waitFor(t, 3*time.Second, func() bool {
		return strings.Count(out.String(), "finished") == 8
	})
}

func Test_AttachProgram_LeastLoaded(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	// Long-sleeping programs keep each worker occupied with exactly one
	// program, so List()'s counts reveal where AttachProgram placed each one.
	for i := 0; i < scheduler.MinWorkers; i++ {
		src := "#PROGRAM\nSLEEP 10\n"
		a.Spawn("t.simbly", strings.NewReader(src), nil)
	}

	waitFor(t, time.Second, func() bool {
		total := 0
		for _, s := range a.List() {
			total += s.Count
		}
		return total == scheduler.MinWorkers
	})

	for _, s := range a.List() {
		assert.Equal(t, 1, s.Count, "each worker should receive exactly one program")
	}
}

func Test_Kill_RemovesProgram(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	prog := a.Spawn("t.simbly", strings.NewReader("#PROGRAM\nSLEEP 30\n"), nil)

	waitFor(t, time.Second, func() bool {
		for _, s := range a.List() {
			if s.FocusedID == prog.ID {
				return true
			}
		}
		return false
	})

	require.True(t, a.Kill(prog.ID))

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(out.String(), "killed unexpectedly")
	})
}

func Test_Kill_UnknownIDReturnsFalse(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	assert.False(t, a.Kill(999999))
}

func Test_Shutdown_StopsAllWorkers(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	require.NoError(t, a.Shutdown())
}

func Test_DumpAll_WritesAttachedPrograms(t *testing.T) {
	var out bytes.Buffer
	a := scheduler.New(scheduler.MinWorkers, globaltable.InitZero, &out, testLog())
	defer a.Shutdown()

	prog := a.Spawn("t.simbly", strings.NewReader("#PROGRAM\nSLEEP 30\n"), nil)

	waitFor(t, time.Second, func() bool {
		var buf bytes.Buffer
		a.DumpAll(&buf)
		return strings.Contains(buf.String(), itoa(prog.ID))
	})
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
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
