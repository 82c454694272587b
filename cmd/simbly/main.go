// Command simbly runs the Simbly scheduler and shell: it starts one worker
// per CPU (floored at 4), reads shell commands from stdin, and tears the
// scheduler down cleanly on exit | quit | q or EOF.
package main

import (
	"flag"
	"os"

	"github.com/gikoskos/simbly/internal/globaltable"
	"github.com/gikoskos/simbly/internal/rtlog"
	"github.com/gikoskos/simbly/internal/scheduler"
	"github.com/gikoskos/simbly/internal/shell"
)

func main() {
	var (
		workers    int
		semInit1   bool
		trace      bool
		dumpOnExit bool
	)
	flag.IntVar(&workers, "workers", scheduler.DefaultWorkerCount(), "number of scheduler workers (floored at 4)")
	flag.BoolVar(&semInit1, "sem-init-one", false, "newly grown semaphore slots start at 1 instead of 0")
	flag.BoolVar(&trace, "trace", false, "enable trace-level scheduler logging")
	flag.BoolVar(&dumpOnExit, "dump-on-exit", false, "dump every still-attached program's state before shutdown")
	flag.Parse()

	log := rtlog.NewConsole(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()
	log.SetTrace(trace)

	initMode := globaltable.InitZero
	if semInit1 {
		initMode = globaltable.InitOne
	}

	admission := scheduler.New(workers, initMode, os.Stdout, log)

	sh := shell.New(os.Stdin, os.Stdout, admission, log)
	log.ErrorIf(sh.Run())

	if dumpOnExit {
		lw := &rtlog.Writer{Logf: log.Leveledf("DUMP")}
		admission.DumpAll(lw)
		lw.Close()
	}
	log.ErrorIf(admission.Shutdown())
}
