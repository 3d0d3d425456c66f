package camera

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parameter keys understood by the device backends.
const (
	KeyPreviewSize       = "preview-size"
	KeyPreviewSizeValues = "preview-size-values"
	KeyPreviewFormat     = "preview-format"
	KeyPreviewFrameRate  = "preview-frame-rate"
	KeyFocusMode         = "focus-mode"
	KeyFocusModeValues   = "focus-mode-values"
)

// Focus modes.
const (
	FocusModeAuto       = "auto"
	FocusModeMacro      = "macro"
	FocusModeContinuous = "continuous-video"
	FocusModeFixed      = "fixed"
	FocusModeInfinity   = "infinity"
)

// Parameters is a set of camera settings keyed by name.
// The zero value is not usable; use NewParameters or Unflatten.
type Parameters struct {
	values map[string]string
}

// NewParameters returns an empty parameter set.
func NewParameters() *Parameters {
	return &Parameters{values: make(map[string]string)}
}

// Unflatten parses the "key=value;key=value" form produced by Flatten.
// Empty entries are skipped; entries without '=' are an error.
func Unflatten(s string) (*Parameters, error) {
	p := NewParameters()
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		idx := strings.IndexByte(entry, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("camera: malformed parameter %q", entry)
		}
		p.values[entry[:idx]] = entry[idx+1:]
	}
	return p, nil
}

// Flatten encodes the set as "key=value;key=value" with keys sorted.
func (p *Parameters) Flatten() string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.values[k])
	}
	return b.String()
}

// Clone returns an independent copy.
func (p *Parameters) Clone() *Parameters {
	c := NewParameters()
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// Get returns the raw value for key.
func (p *Parameters) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set stores value under key. A key containing ';' or '=', or a value
// containing ';', would not survive Flatten and is rejected.
func (p *Parameters) Set(key, value string) error {
	if key == "" || strings.ContainsAny(key, ";=") || strings.ContainsRune(value, ';') {
		return fmt.Errorf("camera: invalid parameter %q=%q", key, value)
	}
	p.values[key] = value
	return nil
}

// Remove deletes key.
func (p *Parameters) Remove(key string) {
	delete(p.values, key)
}

// Int returns the integer value of key, or fallback when missing or not
// an integer.
func (p *Parameters) Int(key string, fallback int) int {
	v, ok := p.values[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// SetInt stores an integer value.
func (p *Parameters) SetInt(key string, value int) {
	p.values[key] = strconv.Itoa(value)
}

// PreviewSize returns the preview width and height.
func (p *Parameters) PreviewSize() (width, height int, ok bool) {
	v, found := p.values[KeyPreviewSize]
	if !found {
		return 0, 0, false
	}
	return parseSize(v)
}

// SetPreviewSize sets the preview width and height.
func (p *Parameters) SetPreviewSize(width, height int) {
	p.values[KeyPreviewSize] = formatSize(width, height)
}

// PreviewFrameRate returns the preview frame rate, or 0 when unset.
func (p *Parameters) PreviewFrameRate() int {
	return p.Int(KeyPreviewFrameRate, 0)
}

// SetPreviewFrameRate sets the preview frame rate.
func (p *Parameters) SetPreviewFrameRate(fps int) {
	p.SetInt(KeyPreviewFrameRate, fps)
}

// FocusMode returns the current focus mode, or "" when unset.
func (p *Parameters) FocusMode() string {
	return p.values[KeyFocusMode]
}

// SetFocusMode sets the focus mode.
func (p *Parameters) SetFocusMode(mode string) {
	p.values[KeyFocusMode] = mode
}

// SupportedFocusModes returns the comma separated focus-mode-values list.
func (p *Parameters) SupportedFocusModes() []string {
	return splitList(p.values[KeyFocusModeValues])
}

// SetSupportedFocusModes stores the supported focus modes.
func (p *Parameters) SetSupportedFocusModes(modes ...string) {
	p.values[KeyFocusModeValues] = strings.Join(modes, ",")
}

func parseSize(v string) (int, int, bool) {
	parts := strings.SplitN(strings.TrimSpace(v), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func formatSize(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
