//go:build !opencv

package device

import (
	"fmt"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
)

func openOpenCV(cfg config.CameraConfig, index int, logger *zap.Logger) (source, *camera.Parameters, error) {
	return nil, nil, fmt.Errorf("%w: built without the opencv tag", ErrUnsupported)
}
