//go:build linux

package mount

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// attachLoop asks the loop-control device for a free slot and binds the
// image file to it. The kernel keeps its own reference to the backing
// file, so both descriptors are closed before returning.
func attachLoop(controlPath, imagePath string) (int, string, error) {
	ctl, err := os.OpenFile(controlPath, os.O_RDWR, 0)
	if err != nil {
		return LoopNone, "", fmt.Errorf("open %s: %w", controlPath, err)
	}
	defer ctl.Close()

	idx, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return LoopNone, "", fmt.Errorf("acquire free loop device: %w", err)
	}

	devPath := loopDevicePath(idx)
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return LoopNone, "", fmt.Errorf("open %s: %w", devPath, err)
	}
	defer dev.Close()

	img, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return LoopNone, "", fmt.Errorf("open image %s: %w", imagePath, err)
	}
	defer img.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_SET_FD, int(img.Fd())); err != nil {
		return LoopNone, "", fmt.Errorf("attach %s to %s: %w", imagePath, devPath, err)
	}

	// Record the backing file name so losetup output stays readable.
	var info unix.LoopInfo64
	copy(info.File_name[:], imagePath)
	if err := unix.IoctlLoopSetStatus64(int(dev.Fd()), &info); err != nil {
		_ = detachLoop(idx)
		return LoopNone, "", fmt.Errorf("set status on %s: %w", devPath, err)
	}

	return idx, devPath, nil
}

// detachLoop releases the loop device at idx.
func detachLoop(idx int) error {
	devPath := loopDevicePath(idx)
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", devPath, err)
	}
	defer dev.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_CLR_FD, 0); err != nil {
		return fmt.Errorf("detach %s: %w", devPath, err)
	}
	return nil
}

func loopDevicePath(idx int) string {
	return fmt.Sprintf("/dev/loop%d", idx)
}
