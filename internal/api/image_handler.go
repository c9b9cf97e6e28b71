package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/storage"
	"jobportal/internal/uploads"
)

// multipartOverhead leaves room for the form fields around the file part.
const multipartOverhead = 1 << 20

// presigner is implemented by backends that serve files from elsewhere.
type presigner interface {
	PresignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// ImageHandler 负责图片上传、列表、删除与静态访问。
type ImageHandler struct {
	uploads *uploads.Manager
	backend storage.Backend
}

// NewImageHandler 返回 ImageHandler 实例。
func NewImageHandler(manager *uploads.Manager, backend storage.Backend) *ImageHandler {
	return &ImageHandler{uploads: manager, backend: backend}
}

// Upload 处理 multipart 图片上传：字段 email、imageName、image。
func (h *ImageHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes()+multipartOverhead)

	email := strings.TrimSpace(c.PostForm("email"))
	imageName := strings.TrimSpace(c.PostForm("imageName"))
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, uploads.ErrTooLarge)
		case email == "":
			respondError(c, uploads.ErrEmailRequired)
		case imageName == "":
			respondError(c, uploads.ErrNameRequired)
		default:
			respondError(c, uploads.ErrFileRequired)
		}
		return
	}

	if email != "" {
		claims, _ := middleware.ClaimsFromContext(c)
		if !auth.CanActOn(claims, email) {
			respondError(c, auth.ErrForbidden)
			return
		}
	}

	body, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()

	res, err := h.uploads.Accept(c.Request.Context(), uploads.Upload{
		OwnerEmail:  email,
		DisplayName: imageName,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Body:        body,
	})
	if err != nil {
		logger.Info("image upload rejected", slog.Any("error", err))
		respondError(c, err)
		return
	}

	logger.Info("image uploaded", slog.String("path", res.Image.Path))
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Image uploaded successfully.",
		"imageName":   res.Image.Name,
		"filePath":    res.Image.Path,
		"totalImages": res.TotalImages,
	})
}

// List 返回某个用户上传的全部图片，公开访问。
func (h *ImageHandler) List(c *gin.Context) {
	user, err := h.uploads.Images(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	images := user.Images
	if images == nil {
		images = images[:0:0]
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Images fetched successfully.",
		"email":       user.Email,
		"fullName":    user.FullName,
		"totalImages": len(images),
		"images":      images,
	})
}

type deleteImageRequest struct {
	Email     string `json:"email"`
	ImagePath string `json:"imagePath"`
}

// Delete 删除一张图片及其文件。只有本人或管理员可以删除。
func (h *ImageHandler) Delete(c *gin.Context) {
	var req deleteImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, uploads.ErrRemoveFieldsNeeded)
		return
	}

	if strings.TrimSpace(req.Email) != "" {
		claims, _ := middleware.ClaimsFromContext(c)
		if !auth.CanActOn(claims, req.Email) {
			respondError(c, auth.ErrForbidden)
			return
		}
	}

	remaining, err := h.uploads.Remove(c.Request.Context(), req.Email, req.ImagePath)
	if err != nil {
		respondError(c, err)
		return
	}

	middleware.LoggerFromContext(c).Info("image deleted", slog.String("path", req.ImagePath))
	c.JSON(http.StatusOK, gin.H{
		"message":         "Image deleted successfully.",
		"remainingImages": remaining,
	})
}

// Serve 输出图片文件；对象存储后端改为重定向到预签名链接。
func (h *ImageHandler) Serve(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if _, err := storage.CleanName(name); err != nil {
		NotFound(c, "Image not found.")
		return
	}

	ctx := c.Request.Context()
	if p, ok := h.backend.(presigner); ok {
		url, err := p.PresignedURL(ctx, name, 15*time.Minute)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	rc, err := h.backend.Open(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFound(c, "Image not found.")
			return
		}
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		middleware.LoggerFromContext(c).Warn("write image failed", slog.String("name", name), slog.Any("error", err))
	}
}
