package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/gateway"
	"github.com/your-org/facegate/pkg/dto"
)

const (
	msgFileNotFound     = "file not found"
	msgInvalidName      = "Invalid naming convention. Please follow the naming convention."
	msgEmployeeAdded    = "Employee added successfully"
	msgTooLarge         = "file too large"
	msgDirectoryDown    = "identity directory unavailable, try again later"
	msgEnrollmentFailed = "enrollment could not be stored, try again later"
	msgInternal         = "internal error"
)

type IdentityHandler struct {
	svc            *gateway.Service
	dir            directory.Directory
	maxUploadBytes int64
}

func NewIdentityHandler(svc *gateway.Service, dir directory.Directory, maxUploadBytes int64) *IdentityHandler {
	return &IdentityHandler{svc: svc, dir: dir, maxUploadBytes: maxUploadBytes}
}

func (h *IdentityHandler) Landing(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}

func (h *IdentityHandler) AddUserPage(c *gin.Context) {
	c.HTML(http.StatusOK, "addUser.html", gin.H{})
}

// Upload identifies the person in the uploaded "file" field. Browsers get
// the landing page back; clients sending Accept: application/json get JSON.
func (h *IdentityHandler) Upload(c *gin.Context) {
	status, resp, msg := h.identify(c)
	render(c, status, "index.html", resp, msg)
}

// AddEmployee enrolls the uploaded "file", named firstname_lastname.ext.
func (h *IdentityHandler) AddEmployee(c *gin.Context) {
	status, resp, msg := h.enroll(c)
	render(c, status, "addUser.html", resp, msg)
}

func (h *IdentityHandler) Identify(c *gin.Context) {
	status, resp, msg := h.identify(c)
	if msg != "" {
		c.JSON(status, dto.ErrorResponse{Error: msg})
		return
	}
	c.JSON(status, resp)
}

func (h *IdentityHandler) Enroll(c *gin.Context) {
	status, resp, msg := h.enroll(c)
	if msg != "" {
		c.JSON(status, dto.ErrorResponse{Error: msg})
		return
	}
	c.JSON(status, resp)
}

func (h *IdentityHandler) Get(c *gin.Context) {
	faceID := c.Param("faceId")

	identity, err := h.dir.Lookup(c.Request.Context(), faceID)
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "identity not found"})
		return
	}
	if err != nil {
		slog.Error("lookup identity", "face_id", faceID, "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: msgDirectoryDown})
		return
	}

	c.JSON(http.StatusOK, dto.IdentityResponse{
		FaceID:    identity.FaceID,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		SourceKey: identity.SourceKey,
		CreatedAt: identity.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *IdentityHandler) identify(c *gin.Context) (int, *dto.IdentifyResponse, string) {
	sub, ok := h.readSubmission(c)
	if !ok {
		return http.StatusRequestEntityTooLarge, nil, msgTooLarge
	}

	result, err := h.svc.Identify(c.Request.Context(), sub)
	if err != nil {
		status, msg := statusFor(err)
		return status, nil, msg
	}

	resp := &dto.IdentifyResponse{
		Filename:  result.Filename,
		Known:     result.Known,
		FirstName: result.FirstName,
		LastName:  result.LastName,
		Archived:  result.Archived,
	}
	if result.Match != nil {
		resp.Matched = true
		resp.FaceID = result.Match.FaceID
		resp.Confidence = result.Match.Confidence
	}
	return http.StatusOK, resp, ""
}

func (h *IdentityHandler) enroll(c *gin.Context) (int, *dto.EnrollResponse, string) {
	sub, ok := h.readSubmission(c)
	if !ok {
		return http.StatusRequestEntityTooLarge, nil, msgTooLarge
	}

	receipt, err := h.svc.Enroll(c.Request.Context(), sub)
	if err != nil {
		status, msg := statusFor(err)
		return status, nil, msg
	}

	return http.StatusAccepted, &dto.EnrollResponse{
		Message:        msgEmployeeAdded,
		EventID:        receipt.EventID,
		Filename:       receipt.Filename,
		FirstName:      receipt.Enrollment.FirstName,
		LastName:       receipt.Enrollment.LastName,
		Bucket:         receipt.Bucket,
		IdempotencyKey: receipt.IdempotencyKey,
		Status:         "pending",
	}, ""
}

// readSubmission reads the multipart "file" field. A missing field yields an
// empty submission, which the service rejects. ok is false only when the
// body exceeds the upload limit.
func (h *IdentityHandler) readSubmission(c *gin.Context) (gateway.Submission, bool) {
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			return gateway.Submission{}, false
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return gateway.Submission{}, false
		}
		return gateway.Submission{}, true
	}

	f, err := fh.Open()
	if err != nil {
		slog.Warn("open uploaded file", "filename", fh.Filename, "error", err)
		return gateway.Submission{}, true
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Warn("read uploaded file", "filename", fh.Filename, "error", err)
		return gateway.Submission{}, true
	}

	return gateway.Submission{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrBadRequest):
		return http.StatusBadRequest, msgFileNotFound
	case errors.Is(err, gateway.ErrInvalidNamingConvention):
		return http.StatusBadRequest, msgInvalidName
	case errors.Is(err, gateway.ErrDirectoryUnavailable):
		slog.Error("identify failed", "error", err)
		return http.StatusServiceUnavailable, msgDirectoryDown
	case errors.Is(err, gateway.ErrEnrollmentNotStored):
		slog.Error("enrollment failed", "error", err)
		return http.StatusServiceUnavailable, msgEnrollmentFailed
	default:
		slog.Error("upload failed", "error", err)
		return http.StatusInternalServerError, msgInternal
	}
}

// render answers with the named page, or JSON when the client prefers it.
func render(c *gin.Context, status int, page string, data any, msg string) {
	if c.NegotiateFormat(binding.MIMEHTML, binding.MIMEJSON) == binding.MIMEJSON {
		if msg != "" {
			c.JSON(status, dto.ErrorResponse{Error: msg})
			return
		}
		c.JSON(status, data)
		return
	}

	if msg != "" {
		c.HTML(status, page, gin.H{"error": msg})
		return
	}
	c.HTML(status, page, gin.H{"result": data})
}
