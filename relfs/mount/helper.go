//go:build linux

package mount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"

	"golang.org/x/sys/unix"
)

// helperEnv flags a re-executed child into helper mode.
const helperEnv = "RELFS_MOUNT_HELPER"

const (
	opMount      = "mount"
	opMountImage = "mount_image"
	opUmount     = "umount"
)

// helperRequest travels parent to child on stdin, one JSON document.
type helperRequest struct {
	Op          string  `json:"op"`
	Source      string  `json:"source,omitempty"`
	Image       string  `json:"image,omitempty"`
	Target      string  `json:"target"`
	FSType      string  `json:"fstype,omitempty"`
	Flags       uintptr `json:"flags,omitempty"`
	Data        string  `json:"data,omitempty"`
	LoopDevice  int     `json:"loopDevice"`
	LoopControl string  `json:"loopControl,omitempty"`
}

// helperResponse travels child to parent on stdout. The loop-device
// index rides here rather than being encoded into the exit status.
type helperResponse struct {
	LoopDevice int    `json:"loopDevice"`
	Error      string `json:"error,omitempty"`
}

// RunHelperIfRequested executes the privileged helper when the current
// process was re-executed by a mount service. Host binaries must call it
// at the top of main, before any other work; it never returns in helper
// mode.
func RunHelperIfRequested() {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	os.Exit(helperMain(os.Stdin, os.Stdout))
}

// helperMain is the child side of the protocol: elevate, perform the one
// requested operation, report the outcome as JSON.
func helperMain(in io.Reader, out io.Writer) int {
	resp := helperResponse{LoopDevice: LoopNone}

	var req helperRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		resp.Error = fmt.Sprintf("decode request: %v", err)
		writeResponse(out, resp)
		return 1
	}

	// The binary is expected to be setuid root when the invoking user is
	// not. Abort before touching the system if elevation fails.
	if unix.Geteuid() != 0 {
		if err := unix.Setuid(0); err != nil {
			resp.Error = fmt.Sprintf("elevate to root: %v", err)
			writeResponse(out, resp)
			return 1
		}
	}

	switch req.Op {
	case opMount:
		if err := unix.Mount(req.Source, req.Target, req.FSType, req.Flags, req.Data); err != nil {
			resp.Error = fmt.Sprintf("mount %s on %s: %v", req.Source, req.Target, err)
		}

	case opMountImage:
		idx, devPath, err := attachLoop(req.LoopControl, req.Image)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		if err := unix.Mount(devPath, req.Target, req.FSType, req.Flags, req.Data); err != nil {
			resp.Error = fmt.Sprintf("mount %s on %s: %v", devPath, req.Target, err)
			if derr := detachLoop(idx); derr != nil {
				resp.Error += fmt.Sprintf("; detach loop%d: %v", idx, derr)
			}
			break
		}
		resp.LoopDevice = idx

	case opUmount:
		if err := unix.Unmount(req.Target, 0); err != nil {
			resp.Error = fmt.Sprintf("unmount %s: %v", req.Target, err)
		}
		// Detach even when the unmount failed so the device is not leaked.
		if req.LoopDevice != LoopNone {
			if err := detachLoop(req.LoopDevice); err != nil {
				if resp.Error != "" {
					resp.Error += "; "
				}
				resp.Error += fmt.Sprintf("detach loop%d: %v", req.LoopDevice, err)
			}
		}

	default:
		resp.Error = fmt.Sprintf("unknown operation %q", req.Op)
	}

	writeResponse(out, resp)
	if resp.Error != "" {
		return 1
	}
	return 0
}

func writeResponse(out io.Writer, resp helperResponse) {
	// Best effort; a broken pipe means the parent is already gone.
	_ = json.NewEncoder(out).Encode(resp)
}

// runHelper re-executes the current binary in helper mode and joins it.
func (s *Service) runHelper(ctx context.Context, req helperRequest) (helperResponse, error) {
	var resp helperResponse

	exe, err := os.Executable()
	if err != nil {
		return resp, common.WrapError(err, "locate executable")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return resp, common.WrapError(err, "encode helper request")
	}

	ctx, cancel := context.WithTimeout(ctx, s.helperTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = os.Stderr

	out, runErr := cmd.Output()

	// The response is parsed even on a non-zero exit so the helper's own
	// error message survives the trip.
	if len(out) > 0 {
		if derr := json.Unmarshal(out, &resp); derr != nil {
			resp = helperResponse{LoopDevice: LoopNone}
		}
	}

	if resp.Error != "" {
		return resp, common.WrapError(common.ErrSubprocessFailure, "%s helper: %s", req.Op, resp.Error)
	}
	if runErr != nil {
		return resp, common.WrapError(common.ErrSubprocessFailure, "%s helper: %v", req.Op, runErr)
	}
	return resp, nil
}
