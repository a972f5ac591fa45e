package imagedelivery

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/noctis-health/pacs-core/internal/errs"
)

// Handler exposes the Image Delivery Service's HTTP surface.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler over an already-constructed Service.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeError(w http.ResponseWriter, err error) {
	status, envelope := errs.ToEnvelope(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

type seriesListEnvelope struct {
	Series []seriesEntry `json:"series"`
}

type seriesEntry struct {
	SeriesInstanceUID string `json:"seriesInstanceUid"`
	Modality          string `json:"modality"`
	SeriesNumber      int    `json:"seriesNumber"`
	SeriesDescription string `json:"seriesDescription"`
	ImageCount        int    `json:"imageCount"`
	FirstInstanceUID  string `json:"firstInstanceUid"`
}

// ListSeries handles GET /studies/{studyUid}/series.
func (h *Handler) ListSeries(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUid")
	series, err := h.svc.ListSeries(r.Context(), studyUID)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]seriesEntry, 0, len(series))
	for _, s := range series {
		instances, err := h.svc.ListInstances(r.Context(), s.SeriesInstanceUID)
		if err != nil {
			writeError(w, err)
			return
		}
		var firstInstanceUID string
		if len(instances) > 0 {
			firstInstanceUID = instances[0].SOPInstanceUID
		}
		entries = append(entries, seriesEntry{
			SeriesInstanceUID: s.SeriesInstanceUID,
			Modality:          s.Modality,
			SeriesNumber:      s.SeriesNumber,
			SeriesDescription: s.SeriesDescription,
			ImageCount:        len(instances),
			FirstInstanceUID:  firstInstanceUID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(seriesListEnvelope{Series: entries})
}

type imageListEnvelope struct {
	Images []imageEntry `json:"images"`
}

type imageEntry struct {
	InstanceUID string `json:"instanceUid"`
	Number      int    `json:"number"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
}

// ListImages handles GET /series/{seriesUid}/images.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	seriesUID := chi.URLParam(r, "seriesUid")
	instances, err := h.svc.ListInstances(r.Context(), seriesUID)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]imageEntry, 0, len(instances))
	for _, in := range instances {
		entries = append(entries, imageEntry{
			InstanceUID: in.SOPInstanceUID,
			Number:      in.InstanceNumber,
			Rows:        in.Rows,
			Cols:        in.Columns,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(imageListEnvelope{Images: entries})
}

type renderMetadata struct {
	Rows         int     `json:"rows"`
	Cols         int     `json:"cols"`
	Modality     string  `json:"modality"`
	WindowCenter float64 `json:"windowCenter"`
	WindowWidth  float64 `json:"windowWidth"`
}

type renderJSONResponse struct {
	DataURL  string         `json:"dataUrl"`
	Metadata renderMetadata `json:"metadata"`
	CacheHit bool           `json:"cacheHit"`
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errs.Wrap(errs.KindBadRequest, "invalid numeric query parameter", err)
	}
	return &v, nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	instanceUID := chi.URLParam(r, "instanceUid")
	q := r.URL.Query()

	wc, err := parseOptionalFloat(q.Get("wl"))
	if err != nil {
		writeError(w, err)
		return
	}
	ww, err := parseOptionalFloat(q.Get("ww"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ww != nil && *ww == 0 {
		writeError(w, errs.New(errs.KindBadRequest, "ww must not be zero"))
		return
	}

	invert := false
	if raw := q.Get("invert"); raw != "" {
		invert, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, errs.Wrap(errs.KindBadRequest, "invalid invert query parameter", err))
			return
		}
	}

	req := RenderRequest{
		WindowCenter: wc,
		WindowWidth:  ww,
		Preset:       q.Get("preset"),
		Invert:       invert,
		Thumbnail:    thumbnail,
	}

	result, err := h.svc.Render(r.Context(), instanceUID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	cacheStatus := "miss"
	if result.CacheHit {
		cacheStatus = "hit"
	}
	w.Header().Set("X-Cache", cacheStatus)
	w.Header().Set("X-Image-Key", result.CacheKey)
	w.Header().Set("Cache-Control", "private, max-age=60")

	metadataHeader, err := json.Marshal(renderMetadata{
		Rows: result.Rows, Cols: result.Columns, Modality: result.Modality,
		WindowCenter: result.WindowCenter, WindowWidth: result.WindowWidth,
	})
	if err == nil {
		w.Header().Set("X-Image-Metadata", string(metadataHeader))
	}

	format := q.Get("format")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(renderJSONResponse{
			DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(result.PNG),
			Metadata: renderMetadata{
				Rows: result.Rows, Cols: result.Columns, Modality: result.Modality,
				WindowCenter: result.WindowCenter, WindowWidth: result.WindowWidth,
			},
			CacheHit: result.CacheHit,
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(result.PNG); err != nil {
		log.Error().Err(err).Str("instance_uid", instanceUID).Msg("failed to write rendered image")
	}
}

// GetImage handles GET /images/{instanceUid}.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, false)
}

// GetThumbnail handles GET /images/{instanceUid}/thumbnail.
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, true)
}

type presetEntry struct {
	Name   string  `json:"name"`
	Width  float64 `json:"ww"`
	Center float64 `json:"wl"`
}

// GetPresets handles GET /presets.
func (h *Handler) GetPresets(w http.ResponseWriter, r *http.Request) {
	presets := h.svc.Presets()
	entries := make([]presetEntry, 0, len(presets))
	for _, p := range presets {
		entries = append(entries, presetEntry{Name: p.Name, Width: p.Width, Center: p.Center})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Presets []presetEntry `json:"presets"`
	}{Presets: entries})
}
