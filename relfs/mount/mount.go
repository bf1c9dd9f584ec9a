//go:build linux

package mount

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/relfs/relfs/config"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
)

// LoopNone marks a mount context without an attached loop device.
const LoopNone = -1

// Context identifies one active mount. It must be passed to Umount
// exactly once and is meaningless afterward.
type Context struct {
	Target     string
	LoopDevice int

	consumed bool
}

// Service performs mount and unmount operations through a privileged
// helper subprocess. The calling process blocks until the helper exits;
// this is a synchronous subprocess join, not internal parallelism.
type Service struct {
	config   config.MountConfig
	registry *Registry
}

// NewService creates a mount service; pass nil for the default
// configuration.
func NewService(cfg *config.MountConfig) *Service {
	mountCfg := config.DefaultMountConfig()
	if cfg != nil {
		mountCfg = *cfg
	}
	return &Service{
		config:   mountCfg,
		registry: NewRegistry(),
	}
}

// Registry returns the service's active-mount registry.
func (s *Service) Registry() *Registry { return s.registry }

// MountImage binds the filesystem image to a free loop device inside the
// helper and mounts that device on target. The returned context carries
// the attached loop-device index.
func (s *Service) MountImage(ctx context.Context, image, target, fsType string, flags uintptr, data string) (*Context, error) {
	imageStats := filesystem.NewEntryStatsPath(image)
	if !imageStats.Exists() || !imageStats.FinalTarget(nil).IsFile() {
		return nil, common.WrapError(common.ErrNotFound, "mount image %s", image)
	}
	if err := s.checkTarget(target); err != nil {
		return nil, err
	}

	resp, err := s.runHelper(ctx, helperRequest{
		Op:          opMountImage,
		Image:       image,
		Target:      target,
		FSType:      fsType,
		Flags:       flags,
		Data:        data,
		LoopControl: s.config.LoopControlPath,
	})
	if err != nil {
		return nil, err
	}

	m := &Context{Target: target, LoopDevice: resp.LoopDevice}
	s.registry.Register(m)
	slog.Info("Image mounted", "image", image, "target", target, "loopDevice", resp.LoopDevice)
	return m, nil
}

// Mount mounts source on target without a loop device.
func (s *Service) Mount(ctx context.Context, source, target, fsType string, flags uintptr, data string) (*Context, error) {
	if err := s.checkTarget(target); err != nil {
		return nil, err
	}

	_, err := s.runHelper(ctx, helperRequest{
		Op:     opMount,
		Source: source,
		Target: target,
		FSType: fsType,
		Flags:  flags,
		Data:   data,
	})
	if err != nil {
		return nil, err
	}

	m := &Context{Target: target, LoopDevice: LoopNone}
	s.registry.Register(m)
	slog.Info("Filesystem mounted", "source", source, "target", target)
	return m, nil
}

// Umount consumes the mount context: the target is unmounted and any
// attached loop device detached afterward, best-effort even when the
// unmount itself failed.
func (s *Service) Umount(ctx context.Context, m *Context) error {
	if m == nil {
		return common.WrapError(common.ErrInvalidArgument, "umount: nil context")
	}
	if m.consumed {
		return common.WrapError(common.ErrInvalidArgument,
			"umount %s: context already consumed", m.Target)
	}
	m.consumed = true
	s.registry.Unregister(m.Target)

	_, err := s.runHelper(ctx, helperRequest{
		Op:         opUmount,
		Target:     m.Target,
		LoopDevice: m.LoopDevice,
	})
	if err != nil {
		return err
	}

	slog.Info("Filesystem unmounted", "target", m.Target, "loopDevice", m.LoopDevice)
	return nil
}

// checkTarget verifies the mount point is an existing directory and not
// already claimed by this service.
func (s *Service) checkTarget(target string) error {
	if _, ok := s.registry.Lookup(target); ok {
		return common.WrapError(common.ErrAlreadyExists, "mount target %s", target)
	}

	stats := filesystem.NewEntryStatsPath(target)
	if !stats.Exists() {
		return common.WrapError(common.ErrNotFound, "mount target %s", target)
	}
	if !stats.FinalTarget(nil).IsDir() {
		return common.WrapError(common.ErrInvalidArgument,
			"mount target %s is not a directory", target)
	}
	return nil
}

func (s *Service) helperTimeout() time.Duration {
	secs := s.config.HelperTimeoutSeconds
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
