// Package deploy triggers stack redeployments through the docker compose CLI.
package deploy

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ComposeDeployer redeploys a stack by running docker compose in its
// working directory.
type ComposeDeployer struct {
	log *zap.Logger
}

// NewComposeDeployer creates a ComposeDeployer.
func NewComposeDeployer(log *zap.Logger) *ComposeDeployer {
	return &ComposeDeployer{log: log}
}

// RedeployStack re-applies the compose definition in the stack directory so
// updated secret environment variables take effect.
func (d *ComposeDeployer) RedeployStack(ctx context.Context, stackName, stackDir string) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d", "--force-recreate")
	cmd.Dir = stackDir

	out, err := cmd.CombinedOutput()
	if err != nil {
		d.log.Error("redeploy failed",
			zap.String("stack", stackName),
			zap.ByteString("output", out),
			zap.Error(err),
		)
		return fmt.Errorf("redeploy stack %q: %w", stackName, err)
	}

	d.log.Info("stack redeployed", zap.String("stack", stackName))
	return nil
}
