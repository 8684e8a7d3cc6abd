package blobstore

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/httpx"
)

// Handler exposes upload and delete for claim documents. Downloads go
// through presigned links handed out with the claim graph.
type Handler struct {
	store   Store
	maxSize int64
	logger  zerolog.Logger
}

func NewHandler(store Store, maxSize int64, logger zerolog.Logger) *Handler {
	if maxSize <= 0 || maxSize > MaxFileSize {
		maxSize = MaxFileSize
	}
	return &Handler{store: store, maxSize: maxSize, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group, perms *auth.PermissionSet) {
	g.POST("/files", h.Upload, perms.Require(auth.PermFileUpload))
	g.DELETE("/files", h.Delete, perms.Require(auth.PermFileDelete))
}

type uploadResponse struct {
	StorageKey  string `json:"storageKey"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if file.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrMissingFileName.Error())
	}
	if file.Size > h.maxSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file").SetInternal(err)
	}
	defer src.Close()

	contentType, err := detectContentType(file.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file").SetInternal(err)
	}
	if !AllowedContentTypes[contentType] {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, ErrInvalidContentType.Error())
	}

	key := NewKey(file.Filename)
	if err := h.store.Put(c.Request().Context(), key, src, file.Size, contentType); err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store file").SetInternal(err)
	}

	h.logger.Info().Str("key", key).Str("content_type", contentType).Int64("size", file.Size).
		Str("actor_id", auth.UserIDFromContext(c.Request().Context())).Msg("document uploaded")
	return c.JSON(http.StatusCreated, uploadResponse{StorageKey: key, ContentType: contentType, Size: file.Size})
}

// detectContentType trusts a specific part header and sniffs the first bytes
// otherwise. src is rewound before returning.
func detectContentType(header string, src io.ReadSeeker) (string, error) {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt, nil
		}
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	return mt, nil
}

type deleteRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,max=50"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// Delete removes the listed objects. Keys already gone are not an error.
func (h *Handler) Delete(c echo.Context) error {
	var req deleteRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	for _, k := range req.Keys {
		if !ValidKey(k) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid storage key: "+k)
		}
	}

	ctx := c.Request().Context()
	deleted := 0
	for _, k := range req.Keys {
		err := h.store.Delete(ctx, k)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, ErrBlobNotFound):
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete file").SetInternal(err)
		}
	}
	return c.JSON(http.StatusOK, deleteResponse{Deleted: deleted})
}
