//go:build !linux

package device

import (
	"fmt"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
)

func openV4L2(cfg config.CameraConfig, index int, logger *zap.Logger) (source, *camera.Parameters, error) {
	return nil, nil, fmt.Errorf("%w: v4l2 requires linux", ErrUnsupported)
}
