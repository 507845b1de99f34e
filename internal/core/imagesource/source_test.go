package imagesource

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestValidateExactlyOneSource(t *testing.T) {
	assert.ErrorIs(t, Source{}.Validate(), ErrNoSource)
	assert.ErrorIs(t, Source{URL: "http://a", Path: "/b"}.Validate(), ErrAmbiguousSource)
	assert.NoError(t, Source{URL: "http://a"}.Validate())
	assert.NoError(t, Source{Data: []byte{1}}.Validate())
}

func TestStrictPolicyRequiresAllowlist(t *testing.T) {
	svc := NewService(PolicyStrict, nil, &fakeFetcher{data: pngBytes(t, 4, 4)}, testLogger())

	_, err := svc.Resolve(context.Background(), Source{URL: "http://denied"}, 0, 0)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestStrictPolicyHonorsPredicate(t *testing.T) {
	allow := func(source string) bool { return source == "http://ok" }
	svc := NewService(PolicyStrict, allow, &fakeFetcher{data: pngBytes(t, 4, 4)}, testLogger())

	img, err := svc.Resolve(context.Background(), Source{URL: "http://ok"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = svc.Resolve(context.Background(), Source{URL: "http://other"}, 0, 0)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestPermissiveSkipsAllowlistButSniffsFormat(t *testing.T) {
	svc := NewService(PolicyPermissive, nil, &fakeFetcher{data: []byte("not an image at all")}, testLogger())

	_, err := svc.Resolve(context.Background(), Source{URL: "http://anything"}, 0, 0)
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestInlineDataSkipsAllowlist(t *testing.T) {
	svc := NewService(PolicyStrict, nil, nil, testLogger())

	img, err := svc.Resolve(context.Background(), Source{Data: pngBytes(t, 3, 5)}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestResizeToComponentBox(t *testing.T) {
	svc := NewService(PolicyPermissive, nil, &fakeFetcher{data: pngBytes(t, 16, 16)}, testLogger())

	img, err := svc.Resolve(context.Background(), Source{URL: "http://a"}, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestOversizeInlineData(t *testing.T) {
	svc := NewService(PolicyPermissive, nil, nil, testLogger())

	big := make([]byte, maxImageBytes+1)
	_, err := svc.Resolve(context.Background(), Source{Data: big}, 0, 0)
	assert.ErrorIs(t, err, ErrTooLarge)
}
