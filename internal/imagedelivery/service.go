// Package imagedelivery implements the Interactive Image Delivery API: HTTP
// study/series navigation, VOI windowing, PNG rendering, and the two-tier
// cache that keeps repeated renders fast.
package imagedelivery

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"golang.org/x/sync/singleflight"

	"github.com/noctis-health/pacs-core/internal/cache"
	"github.com/noctis-health/pacs-core/internal/errs"
	"github.com/noctis-health/pacs-core/internal/metadataindex"
	"github.com/noctis-health/pacs-core/internal/objectstore"
)

// CacheTTLs configures how long rendered bytes live in the cache tiers.
type CacheTTLs struct {
	Image     time.Duration
	Metadata  time.Duration
	Thumbnail time.Duration
}

// Service implements the render pipeline: resolve an instance, decode its
// pixel data, window it, encode PNG, and serve from cache on repeat
// requests.
type Service struct {
	index *metadataindex.Index
	store *objectstore.Store
	l1    cache.Cache
	l2    cache.Cache
	ttls  CacheTTLs
	log   zerolog.Logger

	renderGroup singleflight.Group
}

// NewService builds a Service.
func NewService(index *metadataindex.Index, store *objectstore.Store, l1, l2 cache.Cache, ttls CacheTTLs, log zerolog.Logger) *Service {
	return &Service{
		index: index,
		store: store,
		l1:    l1,
		l2:    l2,
		ttls:  ttls,
		log:   log.With().Str("component", "imagedelivery.service").Logger(),
	}
}

// RenderRequest carries the resolved query parameters for one image render.
type RenderRequest struct {
	WindowCenter *float64
	WindowWidth  *float64
	Preset       string
	Invert       bool
	Thumbnail    bool
}

// RenderResult is one rendered image plus the metadata callers need to
// build response headers and JSON bodies.
type RenderResult struct {
	PNG          []byte
	CacheHit     bool
	CacheKey     string
	Rows         int
	Columns      int
	Modality     string
	WindowCenter float64
	WindowWidth  float64
}

// Render runs the full pipeline for one SOP Instance UID and request.
func (svc *Service) Render(ctx context.Context, sopInstanceUID string, req RenderRequest) (*RenderResult, error) {
	instance, err := svc.index.GetInstance(ctx, sopInstanceUID)
	if err != nil {
		return nil, err
	}

	modality := ""
	if series, err := svc.index.GetSeries(ctx, instance.SeriesInstanceUID); err == nil {
		modality = series.Modality
	}

	format := "png"
	longEdge := 0
	if req.Thumbnail {
		longEdge = thumbnailLongEdge
	}

	canComputeWindowWithoutDecode := (req.WindowCenter != nil && req.WindowWidth != nil) ||
		req.Preset != "" ||
		(instance.DefaultWindowCenter != nil && instance.DefaultWindowWidth != nil)

	var frame *decodedFrame
	var window effectiveWindow

	if canComputeWindowWithoutDecode {
		window, err = resolveWindow(req.WindowCenter, req.WindowWidth, req.Preset, instance.DefaultWindowCenter, instance.DefaultWindowWidth, nil)
		if err != nil {
			return nil, errs.Wrap(errs.KindBadRequest, "resolve window", err)
		}
	} else {
		frame, err = svc.decode(instance)
		if err != nil {
			return nil, err
		}
		window, err = resolveWindow(req.WindowCenter, req.WindowWidth, req.Preset, instance.DefaultWindowCenter, instance.DefaultWindowWidth, frame)
		if err != nil {
			return nil, errs.Wrap(errs.KindBadRequest, "resolve window", err)
		}
	}

	key := cache.Fingerprint(cache.RenderParams{
		InstanceSHA256: instance.SHA256,
		WindowCenter:   window.Center,
		WindowWidth:    window.Width,
		Invert:         req.Invert,
		Format:         format,
		LongEdge:       longEdge,
	})

	if png, hit := svc.lookupCache(ctx, key); hit {
		return &RenderResult{
			PNG: png, CacheHit: true, CacheKey: key,
			Rows: instance.Rows, Columns: instance.Columns, Modality: modality,
			WindowCenter: window.Center, WindowWidth: window.Width,
		}, nil
	}

	renderedAny, err, _ := svc.renderGroup.Do(key, func() (any, error) {
		if png, hit := svc.lookupCache(ctx, key); hit {
			return png, nil
		}

		if frame == nil {
			frame, err = svc.decode(instance)
			if err != nil {
				return nil, err
			}
		}

		samples := applyWindow(frame, instance.RescaleSlope, instance.RescaleIntercept, window, instance.PhotometricInterpretation, req.Invert)
		img := grayImage(samples, frame.Rows, frame.Cols)
		if req.Thumbnail {
			img = downsampleThumbnail(img)
		}

		pngBytes, err := encodePNG(img)
		if err != nil {
			return nil, errs.Wrap(errs.KindProcessingFailure, "encode png", err)
		}

		svc.storeCache(ctx, key, pngBytes, req.Thumbnail)
		return pngBytes, nil
	})
	if err != nil {
		return nil, err
	}

	return &RenderResult{
		PNG: renderedAny.([]byte), CacheHit: false, CacheKey: key,
		Rows: instance.Rows, Columns: instance.Columns, Modality: modality,
		WindowCenter: window.Center, WindowWidth: window.Width,
	}, nil
}

func (svc *Service) decode(instance *metadataindex.Instance) (*decodedFrame, error) {
	rc, err := svc.store.Open(instance.StorageKey, instance.SHA256)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "read instance file", err)
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptArtifact, "parse instance file", err)
	}

	frame, err := decodeFirstFrame(ds, instance.Rows, instance.Columns)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptArtifact, "decode pixel data", err)
	}
	return frame, nil
}

func (svc *Service) lookupCache(ctx context.Context, key string) ([]byte, bool) {
	if svc.l1 != nil {
		if v, err := svc.l1.Get(ctx, key); err == nil {
			return v, true
		}
	}
	if svc.l2 != nil {
		if v, err := svc.l2.Get(ctx, key); err == nil {
			if svc.l1 != nil {
				_ = svc.l1.Set(ctx, key, v, svc.ttls.Image)
			}
			return v, true
		}
	}
	return nil, false
}

func (svc *Service) storeCache(ctx context.Context, key string, png []byte, thumbnail bool) {
	ttl := svc.ttls.Image
	if thumbnail {
		ttl = svc.ttls.Thumbnail
	}
	if svc.l1 != nil {
		if err := svc.l1.Set(ctx, key, png, ttl); err != nil {
			svc.log.Warn().Err(err).Msg("L1 cache store failed")
		}
	}
	if svc.l2 != nil {
		if err := svc.l2.Set(ctx, key, png, ttl); err != nil {
			svc.log.Warn().Err(err).Msg("L2 cache store failed")
		}
	}
}

// ListSeries lists a Study's series. It queries the Metadata Index on every
// call; listings are not cached.
func (svc *Service) ListSeries(ctx context.Context, studyUID string) ([]metadataindex.Series, error) {
	return svc.index.ListSeries(ctx, studyUID)
}

// ListInstances lists a Series' instances.
func (svc *Service) ListInstances(ctx context.Context, seriesUID string) ([]metadataindex.Instance, error) {
	return svc.index.ListInstances(ctx, seriesUID)
}

// Presets returns the static preset table for GET /presets.
func (svc *Service) Presets() []windowPreset {
	return presets
}
