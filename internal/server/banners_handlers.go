package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	operationUpdate = "update"
	operationUpload = "upload"
	operationDelete = "delete"
	operationList   = "list"

	uploadFieldName = "bannerFile"
)

type selectionResponsePayload struct {
	Banners []string              `json:"banners"`
	Debug   selectionDebugPayload `json:"debug"`
}

type selectionDebugPayload struct {
	Today        string `json:"today"`
	Timezone     string `json:"timezone"`
	EvaluatedAt  string `json:"evaluated_at"`
	TotalEntries int    `json:"total_entries"`
	Error        string `json:"error,omitempty"`
}

func (h *httpHandler) handleSelection(c *gin.Context) {
	selection := h.bannersService.Select(c.Request.Context())
	h.metrics.ObserveSelection(len(selection.URLs), selection.Err != nil)

	response := selectionResponsePayload{
		Banners: selection.URLs,
		Debug: selectionDebugPayload{
			Today:        selection.Today.String(),
			Timezone:     selection.Timezone,
			EvaluatedAt:  selection.EvaluatedAt.Format(time.RFC3339),
			TotalEntries: selection.TotalEntries,
		},
	}
	if selection.Err != nil {
		response.Debug.Error = "config_unavailable"
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, response)
}

type listingEntryPayload struct {
	FileName string `json:"fileName"`
	IsActive bool   `json:"isActive"`
	Day      string `json:"day"`
	Priority int    `json:"priority"`
	AssetRef string `json:"assetRef"`
}

type listingResponsePayload struct {
	Config  json.RawMessage       `json:"config"`
	Banners []listingEntryPayload `json:"banners"`
}

func (h *httpHandler) handleList(c *gin.Context) {
	listing, err := h.bannersService.List(c.Request.Context())
	if err != nil {
		h.respondError(c, operationList, err)
		return
	}
	document, err := listing.Document.MarshalJSON()
	if err != nil {
		h.respondError(c, operationList, err)
		return
	}

	response := listingResponsePayload{
		Config:  document,
		Banners: make([]listingEntryPayload, 0, len(listing.Entries)),
	}
	for _, entry := range listing.Entries {
		response.Banners = append(response.Banners, listingEntryPayload{
			FileName: entry.ID,
			IsActive: entry.Active,
			Day:      entry.Day.String(),
			Priority: entry.Priority,
			AssetRef: entry.AssetRef,
		})
	}
	h.metrics.ObserveOperation(operationList, "ok")
	c.JSON(http.StatusOK, response)
}

// scalarText accepts a JSON string or number, e.g. "monday" or 1.
type scalarText string

func (s *scalarText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		*s = scalarText(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	*s = scalarText(number.String())
	return nil
}

// scalarInt accepts a JSON number or numeric string.
type scalarInt int

func (s *scalarInt) UnmarshalJSON(data []byte) error {
	var text scalarText
	if err := text.UnmarshalJSON(data); err != nil {
		return err
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("expected integer priority, got %s", data)
	}
	*s = scalarInt(value)
	return nil
}

type updateRequestPayload struct {
	File     string      `json:"file" validate:"required,max=2048"`
	Active   *bool       `json:"active" validate:"required"`
	Day      *scalarText `json:"day"`
	Priority *scalarInt  `json:"priority"`
}

type updateResponsePayload struct {
	Success     bool   `json:"success"`
	NewState    bool   `json:"new_state"`
	BannerFile  string `json:"banner_file"`
	NewDay      string `json:"new_day"`
	NewPriority int    `json:"new_priority"`
}

func (h *httpHandler) handleUpdate(c *gin.Context) {
	var request updateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalid(c, operationUpdate, "invalid_request")
		return
	}
	request.File = strings.TrimSpace(request.File)
	if err := h.validate.Struct(request); err != nil {
		h.respondInvalid(c, operationUpdate, "invalid_request")
		return
	}

	update := banners.UpdateRequest{ID: request.File, Active: request.Active}
	if request.Day != nil {
		day := string(*request.Day)
		update.Day = &day
	}
	if request.Priority != nil {
		priority := int(*request.Priority)
		update.Priority = &priority
	}

	entry, err := h.bannersService.Update(c.Request.Context(), update)
	if err != nil {
		h.respondError(c, operationUpdate, err)
		return
	}

	h.metrics.ObserveOperation(operationUpdate, "ok")
	c.JSON(http.StatusOK, updateResponsePayload{
		Success:     true,
		NewState:    entry.Active,
		BannerFile:  entry.ID,
		NewDay:      entry.Day.String(),
		NewPriority: entry.Priority,
	})
}

type uploadResponsePayload struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverheadBytes)

	header, err := c.FormFile(uploadFieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondTooLarge(c)
			return
		}
		h.respondInvalid(c, operationUpload, "missing_file")
		return
	}
	if header.Size > h.maxUploadBytes {
		h.respondTooLarge(c)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.respondInvalid(c, operationUpload, "unreadable_file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.respondInvalid(c, operationUpload, "unreadable_file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.respondTooLarge(c)
		return
	}
	if len(data) == 0 {
		h.respondInvalid(c, operationUpload, "empty_file")
		return
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		h.logger.Info("rejected non-image upload",
			zap.String("file_name", header.Filename),
			zap.String("detected_type", detected.String()))
		h.respondInvalid(c, operationUpload, "unsupported_media_type")
		return
	}

	entry, err := h.bannersService.Create(c.Request.Context(), banners.Upload{
		Data:        data,
		FileName:    header.Filename,
		ContentType: detected.String(),
	})
	if err != nil {
		h.respondError(c, operationUpload, err)
		return
	}

	h.metrics.ObserveOperation(operationUpload, "ok")
	c.JSON(http.StatusCreated, uploadResponsePayload{
		Success:  true,
		URL:      entry.ID,
		PublicID: entry.AssetRef,
	})
}

func (h *httpHandler) respondTooLarge(c *gin.Context) {
	h.metrics.ObserveOperation(operationUpload, "too_large")
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"success": false,
		"error":   "file_too_large",
		"code":    "http.upload.file_too_large",
	})
}

type deleteRequestPayload struct {
	ID       string `json:"id" form:"id"`
	URL      string `json:"url" form:"url"`
	File     string `json:"file" form:"file"`
	PublicID string `json:"publicId" form:"publicId"`
}

func (p deleteRequestPayload) bannerID() string {
	for _, candidate := range []string{p.ID, p.URL, p.File} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type deleteResponsePayload struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Removed       bool   `json:"removed"`
	AssetReleased bool   `json:"asset_released"`
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	var request deleteRequestPayload
	if err := c.ShouldBindQuery(&request); err != nil {
		h.respondInvalid(c, operationDelete, "invalid_request")
		return
	}
	if request.bannerID() == "" && c.Request.Body != nil {
		// io.EOF means there was no body at all, chunked or not
		if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
			h.respondInvalid(c, operationDelete, "invalid_request")
			return
		}
	}
	bannerID := request.bannerID()
	if bannerID == "" {
		h.respondInvalid(c, operationDelete, "missing_id")
		return
	}

	result, err := h.bannersService.Delete(c.Request.Context(), banners.DeleteRequest{
		ID:       bannerID,
		AssetRef: request.PublicID,
	})
	if err != nil {
		h.respondError(c, operationDelete, err)
		return
	}

	message := "banner removed"
	if !result.Removed {
		message = "banner already absent"
	}
	h.metrics.ObserveOperation(operationDelete, "ok")
	c.JSON(http.StatusOK, deleteResponsePayload{
		Success:       true,
		Message:       message,
		Removed:       result.Removed,
		AssetReleased: result.AssetReleased,
	})
}
