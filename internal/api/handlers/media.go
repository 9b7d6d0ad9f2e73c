// media.go — обработчики маршрутов /media.
// Параметры пути и запроса связываются через oapi-codegen runtime,
// как в сгенерированных chi-обёртках.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/service"
)

// maxGrantBodyBytes — предельный размер тела запроса выдачи разрешения.
const maxGrantBodyBytes = 4 << 10

const msgInvalidMediaName = "Invalid media name"

// UploadURLResponse — ответ GET /media/upload-url/{mediaName}.
type UploadURLResponse struct {
	URL string `json:"url"`
}

// RegisterMediaResponse — ответ GET /media/register_media/{mediaName}.
type RegisterMediaResponse struct {
	MediaID   int64     `json:"media_id"`
	CreatedAt time.Time `json:"created_at"`
	SizeInMB  float64   `json:"size_in_mb"`
}

// MediaAccessResponse — ответ GET /media/access/{mediaId}.
type MediaAccessResponse struct {
	SignedURL string    `json:"signed_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MediaListResponse — страница списка медиа.
type MediaListResponse struct {
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalMedia int            `json:"total_media"`
	Media      []*model.Media `json:"media"`
}

// DetailResponse — ответ с текстовым описанием результата.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// GrantPermissionRequest — тело PUT /media/{mediaId}/permissions/{username}.
type GrantPermissionRequest struct {
	PermissionType model.PermissionKind `json:"permission_type"`
}

// ListParams — параметры пагинации листингов.
type ListParams struct {
	Page     *int
	PageSize *int
}

// GetUploadURL — GET /media/upload-url/{mediaName}.
func (h *APIHandler) GetUploadURL(w http.ResponseWriter, r *http.Request, p model.Principal) {
	name, ok := bindMediaName(w, r)
	if !ok {
		return
	}

	url, err := h.media.UploadURL(r.Context(), p, name)
	if err != nil {
		h.writeServiceError(w, r, err, errorMessages{validation: msgInvalidMediaName})
		return
	}
	writeJSON(w, http.StatusOK, UploadURLResponse{URL: url})
}

// RegisterMedia — GET /media/register_media/{mediaName}.
func (h *APIHandler) RegisterMedia(w http.ResponseWriter, r *http.Request, p model.Principal) {
	name, ok := bindMediaName(w, r)
	if !ok {
		return
	}

	media, err := h.media.Register(r.Context(), p, name)
	if err != nil {
		h.writeServiceError(w, r, err, errorMessages{
			notFound:   "Media file not found in the upload directory",
			conflict:   fmt.Sprintf("The media with media_name: %s already exists in the media registry", name),
			validation: msgInvalidMediaName,
		})
		return
	}
	writeJSON(w, http.StatusOK, RegisterMediaResponse{
		MediaID:   media.ID,
		CreatedAt: media.CreatedAt,
		SizeInMB:  media.SizeInMB,
	})
}

// GetMediaAccess — GET /media/access/{mediaId}.
func (h *APIHandler) GetMediaAccess(w http.ResponseWriter, r *http.Request, p model.Principal) {
	mediaID, ok := bindMediaID(w, r)
	if !ok {
		return
	}

	signed, err := h.access.SignedURL(r.Context(), p, mediaID)
	if err != nil {
		h.writeServiceError(w, r, err, errorMessages{})
		return
	}
	writeJSON(w, http.StatusOK, MediaAccessResponse{
		SignedURL: signed.URL,
		ExpiresAt: signed.ExpiresAt,
	})
}

// ListPermittedMedia — GET /media/all_media.
func (h *APIHandler) ListPermittedMedia(w http.ResponseWriter, r *http.Request, p model.Principal) {
	params, ok := bindListParams(w, r)
	if !ok {
		return
	}

	page, err := h.media.ListPermitted(r.Context(), p, deref(params.Page), deref(params.PageSize))
	if err != nil {
		h.writeServiceError(w, r, err, errorMessages{})
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(page))
}

// ListOwnedMedia — GET /media/user_media.
func (h *APIHandler) ListOwnedMedia(w http.ResponseWriter, r *http.Request, p model.Principal) {
	params, ok := bindListParams(w, r)
	if !ok {
		return
	}

	page, err := h.media.ListOwned(r.Context(), p, deref(params.Page), deref(params.PageSize))
	if err != nil {
		h.writeServiceError(w, r, err, errorMessages{})
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(page))
}

// DeleteMedia — DELETE /media/{mediaId}/{mediaName}.
func (h *APIHandler) DeleteMedia(w http.ResponseWriter, r *http.Request, p model.Principal) {
	mediaID, ok := bindMediaID(w, r)
	if !ok {
		return
	}
	name, ok := bindMediaName(w, r)
	if !ok {
		return
	}

	if err := h.media.Delete(r.Context(), p, mediaID, name); err != nil {
		h.writeServiceError(w, r, err, errorMessages{validation: msgInvalidMediaName})
		return
	}
	writeJSON(w, http.StatusOK, DetailResponse{Detail: "Storage item deleted successfully"})
}

// GrantPermission — PUT /media/{mediaId}/permissions/{username}.
func (h *APIHandler) GrantPermission(w http.ResponseWriter, r *http.Request, p model.Principal) {
	mediaID, ok := bindMediaID(w, r)
	if !ok {
		return
	}
	username, ok := bindUsername(w, r)
	if !ok {
		return
	}

	var req GrantPermissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGrantBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid request body")
		return
	}

	if err := h.media.Grant(r.Context(), p, mediaID, username, req.PermissionType); err != nil {
		h.writeServiceError(w, r, err, errorMessages{validation: "Invalid permission request"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokePermission — DELETE /media/{mediaId}/permissions/{username}.
func (h *APIHandler) RevokePermission(w http.ResponseWriter, r *http.Request, p model.Principal) {
	mediaID, ok := bindMediaID(w, r)
	if !ok {
		return
	}
	username, ok := bindUsername(w, r)
	if !ok {
		return
	}

	if err := h.media.Revoke(r.Context(), p, mediaID, username); err != nil {
		h.writeServiceError(w, r, err, errorMessages{notFound: "Permission not found", validation: "Invalid permission request"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Связывание параметров ---

func bindPathParam(w http.ResponseWriter, r *http.Request, name string, dest any) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Invalid format for parameter %s", name))
		return false
	}
	return true
}

func bindMediaName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var name string
	ok := bindPathParam(w, r, "mediaName", &name)
	return name, ok
}

func bindMediaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	ok := bindPathParam(w, r, "mediaId", &id)
	return id, ok
}

func bindUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	var username string
	ok := bindPathParam(w, r, "username", &username)
	return username, ok
}

func bindListParams(w http.ResponseWriter, r *http.Request) (ListParams, bool) {
	var params ListParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "page", query, &params.Page); err != nil {
		apierrors.ValidationError(w, "Invalid format for parameter page")
		return params, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "page_size", query, &params.PageSize); err != nil {
		apierrors.ValidationError(w, "Invalid format for parameter page_size")
		return params, false
	}
	return params, true
}

// deref возвращает 0 для отсутствующего параметра: значения по умолчанию задаёт сервис.
func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func toListResponse(page *model.MediaPage) MediaListResponse {
	items := page.Items
	if items == nil {
		items = []*model.Media{}
	}
	return MediaListResponse{
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalMedia: page.Total,
		Media:      items,
	}
}

var _ MediaManager = (*service.MediaService)(nil)
var _ AccessProvider = (*service.AccessService)(nil)
