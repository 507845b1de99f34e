// Package imagesource resolves image component sources (remote URL, local
// path, or inline bytes) into decoded images, enforcing the allowlist policy
// and the non-configurable fetch safety floors.
package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/metrics"
)

// Safety floors. These bound every fetch and read regardless of policy and
// are deliberately not configurable.
const (
	fetchTimeout  = 10 * time.Second
	maxImageBytes = 5 << 20
)

var (
	ErrNoSource        = errors.New("image component requires exactly one of url, path or data")
	ErrAmbiguousSource = errors.New("image component must not set more than one source")
	ErrNotAllowed      = errors.New("image source rejected by allowlist")
	ErrTooLarge        = errors.New("image source exceeds size limit")
	ErrBadFormat       = errors.New("image source is not a supported image format")
)

// Source identifies where an image comes from. Exactly one field may be set.
type Source struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Validate enforces the exactly-one-of invariant.
func (s Source) Validate() error {
	count := 0
	if s.URL != "" {
		count++
	}
	if s.Path != "" {
		count++
	}
	if len(s.Data) > 0 {
		count++
	}
	switch count {
	case 0:
		return ErrNoSource
	case 1:
		return nil
	default:
		return ErrAmbiguousSource
	}
}

// Ref returns the identifier handed to the allowlist predicate and used in
// log fields.
func (s Source) Ref() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Path != "":
		return s.Path
	default:
		return fmt.Sprintf("inline(%d bytes)", len(s.Data))
	}
}

// Policy controls whether the allowlist predicate gates external sources.
type Policy string

const (
	PolicyStrict     Policy = "strict"
	PolicyPermissive Policy = "permissive"
)

// AllowFunc is the injected allowlist predicate. It receives the URL or
// path of the source being considered.
type AllowFunc func(source string) bool

// PrefixAllowList builds an AllowFunc accepting sources that start with
// any of the given prefixes. An empty list allows nothing.
func PrefixAllowList(prefixes []string) AllowFunc {
	return func(source string) bool {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(source, p) {
				return true
			}
		}
		return false
	}
}

// Fetcher retrieves remote content within the given bounds.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Service resolves sources into decoded, optionally resized images.
type Service struct {
	policy  Policy
	allow   AllowFunc
	fetcher Fetcher
	logger  *logrus.Logger
	metrics *metrics.Collector
}

// NewService creates an image source service. A nil fetcher falls back to
// the default HTTP fetcher.
func NewService(policy Policy, allow AllowFunc, fetcher Fetcher, logger *logrus.Logger) *Service {
	if policy == "" {
		policy = PolicyStrict
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		policy:  policy,
		allow:   allow,
		fetcher: fetcher,
		logger:  logger,
	}
}

// SetCollector attaches the metrics collector.
func (s *Service) SetCollector(c *metrics.Collector) {
	s.metrics = c
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordImageFetch(result)
	}
}

// Resolve validates, fetches, sniffs and decodes a source. When width and
// height are positive the image is resized to exactly that box; when only
// width is positive the aspect ratio is preserved.
func (s *Service) Resolve(ctx context.Context, src Source, width, height int) (image.Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	// Inline bytes were supplied by the page author directly, so the
	// allowlist does not apply to them; size and format floors still do.
	if len(src.Data) == 0 && s.policy == PolicyStrict {
		if s.allow == nil || !s.allow(src.Ref()) {
			s.record("rejected")
			return nil, fmt.Errorf("%w: %s", ErrNotAllowed, src.Ref())
		}
	}

	data, err := s.read(ctx, src)
	if err != nil {
		s.record("error")
		return nil, err
	}

	if kind, err := filetype.Match(data); err != nil || !isSupportedImage(kind) {
		s.record("error")
		return nil, fmt.Errorf("%w: %s", ErrBadFormat, src.Ref())
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		s.record("error")
		return nil, fmt.Errorf("failed to decode image %s: %w", src.Ref(), err)
	}

	switch {
	case width > 0 && height > 0:
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	case width > 0:
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	s.record("ok")
	s.logger.WithFields(logrus.Fields{
		"source": src.Ref(),
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Resolved image source")

	return img, nil
}

func (s *Service) read(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.URL != "":
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		data, err := s.fetcher.Fetch(fetchCtx, src.URL, maxImageBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", src.URL, err)
		}
		return data, nil

	case src.Path != "":
		info, err := os.Stat(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src.Path, err)
		}
		if info.Size() > maxImageBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, src.Path, info.Size())
		}
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src.Path, err)
		}
		return data, nil

	default:
		if int64(len(src.Data)) > maxImageBytes {
			return nil, fmt.Errorf("%w: inline data is %d bytes", ErrTooLarge, len(src.Data))
		}
		return src.Data, nil
	}
}

func isSupportedImage(kind types.Type) bool {
	switch kind {
	case matchers.TypePng, matchers.TypeJpeg, matchers.TypeGif, matchers.TypeWebp, matchers.TypeBmp:
		return true
	default:
		return false
	}
}
