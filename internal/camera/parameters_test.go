package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_FlattenIsSorted(t *testing.T) {
	p := NewParameters()
	p.SetPreviewSize(640, 480)
	p.SetFocusMode(FocusModeMacro)
	p.SetPreviewFrameRate(15)

	assert.Equal(t, "focus-mode=macro;preview-frame-rate=15;preview-size=640x480", p.Flatten())
}

func TestParameters_Unflatten(t *testing.T) {
	p, err := Unflatten("preview-size=320x240;;focus-mode-values=auto, macro,fixed;preview-frame-rate=10")
	require.NoError(t, err)

	w, h, ok := p.PreviewSize()
	require.True(t, ok)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.Equal(t, 10, p.PreviewFrameRate())
	assert.Equal(t, []string{"auto", "macro", "fixed"}, p.SupportedFocusModes())

	_, err = Unflatten("preview-size")
	assert.Error(t, err)
	_, err = Unflatten("=x")
	assert.Error(t, err)
}

func TestParameters_SetRejectsSeparators(t *testing.T) {
	p := NewParameters()
	assert.Error(t, p.Set("a;b", "1"))
	assert.Error(t, p.Set("a=b", "1"))
	assert.Error(t, p.Set("", "1"))
	assert.Error(t, p.Set("key", "1;2"))
	assert.NoError(t, p.Set("key", "a=b"))

	v, ok := p.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "a=b", v)
}

func TestParameters_CloneIsIndependent(t *testing.T) {
	p := NewParameters()
	p.SetFocusMode(FocusModeAuto)
	c := p.Clone()
	c.SetFocusMode(FocusModeFixed)
	c.Remove(KeyPreviewSize)

	assert.Equal(t, FocusModeAuto, p.FocusMode())
	assert.Equal(t, FocusModeFixed, c.FocusMode())
}

func TestParameters_IntFallback(t *testing.T) {
	p := NewParameters()
	assert.Equal(t, 7, p.Int("missing", 7))
	require.NoError(t, p.Set("bad", "abc"))
	assert.Equal(t, 7, p.Int("bad", 7))
	p.SetInt("good", 42)
	assert.Equal(t, 42, p.Int("good", 7))

	require.NoError(t, p.Set(KeyPreviewSize, "0x10"))
	_, _, ok := p.PreviewSize()
	assert.False(t, ok)
	assert.Zero(t, p.PreviewFrameRate())
	assert.Nil(t, p.SupportedFocusModes())
}
