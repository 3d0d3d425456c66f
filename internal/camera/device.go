package camera

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DeviceInfo describes a video device node.
type DeviceInfo struct {
	ID    string // "video0"
	Path  string // "/dev/video0"
	Index int
	Name  string
}

// DiscoverDevices lists /dev/video* character devices ordered by index.
func DiscoverDevices() ([]DeviceInfo, error) {
	return discover("/dev", func(info fs.FileInfo) bool {
		return info.Mode()&os.ModeCharDevice != 0
	})
}

func discover(dir string, isDevice func(fs.FileInfo) bool) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var devices []DeviceInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !isDevice(info) {
			continue
		}
		devices = append(devices, DeviceInfo{
			ID:    name,
			Path:  filepath.Join(dir, name),
			Index: index,
			Name:  fmt.Sprintf("Camera %s", name),
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

// DevicePath returns the node path for a camera index.
func DevicePath(index int) string {
	return "/dev/video" + strconv.Itoa(index)
}
