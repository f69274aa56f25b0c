package main

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

/*
runCommand runs an external command and returns its exit status and
combined output.
*/
func runCommand(command string, args []string) (int, string, error) {
	start := time.Now()
	cmd := exec.Command(command, args...)
	output, err := cmd.CombinedOutput()

	// ProcessState is nil when the command never started
	exitStatus := -1
	if cmd.ProcessState != nil {
		exitStatus = cmd.ProcessState.ExitCode()
	}

	slog.Debug("external command finished",
		"command", command, "exit status", exitStatus, "duration", time.Since(start))

	if err != nil {
		return exitStatus, string(output), fmt.Errorf("error [%w] running command [%s]", err, command)
	}
	return exitStatus, string(output), nil
}

/*
dtmFromLAZ rasterizes a LAZ/LAS point cloud to a DTM GeoTIFF through the
external dtm-builder tool. The tool is treated as a black box; only its
exit status and output file matter.
*/
func dtmFromLAZ(lazFile, dtmFile string, resolutionM float64) error {
	exitStatus, output, err := runCommand("dtm-builder", []string{
		"--input", lazFile,
		"--output", dtmFile,
		"--resolution", fmt.Sprintf("%.2f", resolutionM),
	})
	if err != nil {
		return fmt.Errorf("error [%w: %d - %s] at runCommand()", err, exitStatus, output)
	}
	if !fileExists(dtmFile) {
		return fmt.Errorf("dtm-builder reported success but output [%s] does not exist", dtmFile)
	}
	return nil
}
