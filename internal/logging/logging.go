// Package logging configures the tflog root logger and subsystems.
package logging

import (
	"context"
	"os"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
)

const (
	// LevelEnv sets the root level; ADIS_LOG_<SUBSYSTEM> overrides it per subsystem.
	LevelEnv = "ADIS_LOG"

	DefaultLevel = "INFO"

	rootName = "adis"
)

// maskedKeys never reach the log output in clear text.
var maskedKeys = []string{"password", "api_key"}

// New creates the root logger and initialises every named subsystem.
func New(ctx context.Context, subsystems ...string) context.Context {
	if os.Getenv(LevelEnv) == "" {
		_ = os.Setenv(LevelEnv, DefaultLevel)
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName(rootName),
		tfsdklog.WithLevelFromEnv(LevelEnv))
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, maskedKeys...)

	return WithSubsystems(ctx, subsystems...)
}

// WithSubsystems adds subsystems to an existing root logger.
// Pattern: ADIS_LOG_<SUBSYSTEM>
func WithSubsystems(ctx context.Context, subsystems ...string) context.Context {
	for _, subsystem := range subsystems {
		ctx = tflog.NewSubsystem(ctx, subsystem,
			tflog.WithLevelFromEnv(LevelEnv, subsystem))
		ctx = tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, subsystem, maskedKeys...)
	}
	return ctx
}
