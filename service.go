package hatsetup

import (
	"context"
	"fmt"
	"strings"
)

// Services wraps the systemctl operations the tool needs.
type Services struct {
	sys *System
}

func NewServices(sys *System) *Services {
	return &Services{sys: sys}
}

// Enabled reports whether a unit is enabled to start on boot.
func (s *Services) Enabled(ctx context.Context, unit string) bool {
	result, err := s.sys.Run(ctx, "systemctl", "is-enabled", unit)
	return err == nil && result.OK() && strings.TrimSpace(result.Stdout) == "enabled"
}

// Active reports whether a unit is currently running.
func (s *Services) Active(ctx context.Context, unit string) bool {
	result, err := s.sys.Run(ctx, "systemctl", "is-active", unit)
	return err == nil && result.OK() && strings.TrimSpace(result.Stdout) == "active"
}

func (s *Services) Enable(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "enable", unit)
}

func (s *Services) Disable(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "disable", unit)
}

func (s *Services) Start(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "start", unit)
}

func (s *Services) Stop(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "stop", unit)
}

func (s *Services) systemctl(ctx context.Context, action, unit string) error {
	result, err := s.sys.Sudo(ctx, "systemctl", action, unit)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("systemctl %s %s: %s", action, unit, strings.TrimSpace(result.Stderr))
	}
	return nil
}
